// Package cascade re-times the downstream chain of a one-child-tree flow
// after an upstream deadline moved, and runs that work off a persistent queue.
package cascade

import (
	"fmt"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/tree"
)

// Change is one re-timed (sponsor, participant) pair. Sponsor is nil when the
// re-timed participant is the root.
type Change struct {
	Sponsor     *domain.Participant
	Participant *domain.Participant
}

// Recompute walks the flow's current line and re-times every participant
// below it, mutating the arena in place. It performs no I/O; identical inputs
// give identical results.
//
// When the head of the current line has registered, its own accept stage
// moved and its descendants follow it. When it has not (an admin accepted
// on the sponsor's behalf), the head itself reopens at now+grace.
//
// Flows whose sponsors may hold more than one child are left untouched.
func Recompute(arena *tree.Arena, flow *domain.Flow, now time.Time, grace time.Duration) ([]Change, error) {
	if !flow.IsOneChildTree() || flow.State == domain.FlowCompleted {
		return nil, nil
	}
	line := arena.AtLevel(flow.CurrentLevel)
	if len(line) == 0 {
		return nil, nil
	}
	head := line[0]

	if head.Registered {
		child := arena.FirstChild(head)
		if child == nil {
			return nil, nil
		}
		return Propagate(arena, flow, head, child, head.WhenAcceptationEnds(flow.TimeForAccept), now)
	}
	return Propagate(arena, flow, arena.Parent(head), head, now.Add(grace), now)
}

// Propagate re-times participant to open at start, then every first child
// below it to open when its sponsor's accept stage ends. Each sponsor's
// MustAcceptChildrenFrom follows its child. A participant seen twice means
// the parent links loop and yields domain.ErrCycleDetected; changes made
// before the loop was found are still returned.
func Propagate(arena *tree.Arena, flow *domain.Flow, sponsor, participant *domain.Participant, start, now time.Time) ([]Change, error) {
	cfg := flow.TimingConfig()
	visited := make(map[string]bool)
	var changes []Change
	for participant != nil {
		if visited[participant.ID] {
			return changes, fmt.Errorf("participant %s revisited in flow %s: %w", participant.ID, flow.ID, domain.ErrCycleDetected)
		}
		visited[participant.ID] = true

		participant.Retime(start, cfg)
		participant.UpdatedAt = now
		if sponsor != nil {
			from := participant.AcceptStageStartsAt
			sponsor.MustAcceptChildrenFrom = &from
			sponsor.UpdatedAt = now
		}
		changes = append(changes, Change{Sponsor: sponsor, Participant: participant})

		start = participant.WhenAcceptationEnds(flow.TimeForAccept)
		sponsor = participant
		participant = arena.FirstChild(participant)
	}
	return changes, nil
}
