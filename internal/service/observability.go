package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/repository"
)

// Action outcomes, shared with the flow_actions_total metric.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// FlowActionEvent describes one finished flow action. Fields usually carry
// flow_id and participant_id.
type FlowActionEvent struct {
	Action    string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
	Fields    map[string]any
}

// Outcome classifies the event. Errors the caller caused (bad input, wrong
// actor, wrong state, unknown ids) are rejections; anything else failed.
func (e FlowActionEvent) Outcome() string {
	switch {
	case e.Err == nil:
		return OutcomeOK
	case errors.Is(e.Err, domain.ErrValidation),
		errors.Is(e.Err, domain.ErrForbidden),
		errors.Is(e.Err, domain.ErrNotEligible),
		errors.Is(e.Err, domain.ErrAlreadyRegistered),
		errors.Is(e.Err, domain.ErrCapacityExceeded),
		errors.Is(e.Err, repository.ErrNotFound):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// FlowActionObserver receives flow action events.
type FlowActionObserver interface {
	ObserveFlowAction(ctx context.Context, event FlowActionEvent)
}

// NoopActionObserver ignores all events.
type NoopActionObserver struct{}

func (NoopActionObserver) ObserveFlowAction(context.Context, FlowActionEvent) {}

type logActionObserver struct {
	logger *slog.Logger
}

// NewLogActionObserver logs flow actions: successes at INFO, rejections at
// WARN and failures at ERROR.
func NewLogActionObserver(logger *slog.Logger) FlowActionObserver {
	if logger == nil {
		return NoopActionObserver{}
	}
	return &logActionObserver{logger: logger}
}

func (o *logActionObserver) ObserveFlowAction(ctx context.Context, event FlowActionEvent) {
	outcome := event.Outcome()
	attrs := make([]any, 0, 8+len(event.Fields)*2)
	attrs = append(attrs,
		"action", event.Action,
		"outcome", outcome,
		"duration_ms", event.Duration.Milliseconds(),
	)
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, event.Fields[k])
	}

	switch outcome {
	case OutcomeOK:
		o.logger.InfoContext(ctx, "flow_action", attrs...)
	case OutcomeRejected:
		o.logger.WarnContext(ctx, "flow_action", append(attrs, "error", event.Err.Error())...)
	default:
		o.logger.ErrorContext(ctx, "flow_action", append(attrs, "error", event.Err.Error())...)
	}
}

func observerOrNoop(observers []FlowActionObserver) FlowActionObserver {
	for _, obs := range observers {
		if obs != nil {
			return obs
		}
	}
	return NoopActionObserver{}
}
