package domain

import (
	"net/url"
	"strings"
	"time"

	"github.com/alexanderramin/treeflow/internal/timing"
)

const maxReferralFieldLen = 255

// Referral is the registration data a participant submits.
type Referral struct {
	URL   string
	Name  string
	Login string
}

// Validate checks the referral the way the registration form does.
func (r Referral) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fieldErr("referral_url", "is required")
	}
	if len(r.URL) > maxReferralFieldLen {
		return fieldErr("referral_url", "must be at most %d characters", maxReferralFieldLen)
	}
	u, err := url.ParseRequestURI(r.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fieldErr("referral_url", "must be an absolute http(s) URL")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fieldErr("referral_name", "is required")
	}
	if len(r.Name) > maxReferralFieldLen {
		return fieldErr("referral_name", "must be at most %d characters", maxReferralFieldLen)
	}
	if strings.TrimSpace(r.Login) == "" {
		return fieldErr("referral_login", "is required")
	}
	if len(r.Login) > maxReferralFieldLen {
		return fieldErr("referral_login", "must be at most %d characters", maxReferralFieldLen)
	}
	return nil
}

// Participant is one slot in a flow's registration tree.
type Participant struct {
	ID       string
	FlowID   string
	UserID   string
	ParentID *string // nil for the root
	Level    int
	Seq      int // flow-scoped creation order

	Registered   bool
	Referral     Referral
	RegisteredAt *time.Time
	AcceptedAt   *time.Time
	AcceptedBy   *string

	MustBeRegisteredFrom   time.Time
	AcceptStageStartsAt    time.Time
	MustAcceptChildrenFrom *time.Time
	AcceptTimeOverride     *time.Duration

	// Nullable timestamps doubling as "already notified" flags.
	NotificationSent      *time.Time
	NotifyAboutAcceptSent *time.Time

	Deleted       bool
	DeletedReason string
	DeletedAt     *time.Time
	InheritorOf   *string
	ReplacedBy    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Participant) IsRoot() bool { return p.ParentID == nil }

func (p *Participant) IsAccepted() bool { return p.AcceptedAt != nil }

// Resolved reports whether the slot no longer blocks a level advance:
// accepted, or removed and already taken over by an inheritor.
func (p *Participant) Resolved() bool {
	if p.Deleted {
		return p.ReplacedBy != nil
	}
	return p.IsAccepted()
}

// AcceptDuration returns the accept-stage length for this participant's
// cohort, honouring an admin extension.
func (p *Participant) AcceptDuration(flowAccept time.Duration) time.Duration {
	if p.AcceptTimeOverride != nil {
		return *p.AcceptTimeOverride
	}
	return flowAccept
}

// WhenAcceptationEnds returns the end of this participant's accept stage.
func (p *Participant) WhenAcceptationEnds(flowAccept time.Duration) time.Time {
	return timing.AcceptEnd(p.AcceptStageStartsAt, p.AcceptDuration(flowAccept))
}

// RegistrationOpen reports whether the participant may register at now.
func (p *Participant) RegistrationOpen(now time.Time) bool {
	if p.Deleted || p.Registered {
		return false
	}
	return !now.Before(p.MustBeRegisteredFrom) && now.Before(p.AcceptStageStartsAt)
}

// Register records referral data. Callers check the window separately.
func (p *Participant) Register(ref Referral, now time.Time) error {
	if p.Registered {
		return ErrAlreadyRegistered
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	p.Registered = true
	p.Referral = ref
	p.RegisteredAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Participant) Accept(byUserID string, now time.Time) {
	p.AcceptedAt = &now
	p.AcceptedBy = &byUserID
	p.UpdatedAt = now
}

// Retime opens the registration window at start and recomputes the accept
// stage for the participant's level. Notification flags are cleared so the
// participant is told about the new window.
func (p *Participant) Retime(start time.Time, cfg timing.Config) {
	p.MustBeRegisteredFrom = start
	p.AcceptStageStartsAt = timing.AddRegisterTime(cfg, start, p.Level)
	p.ClearNotifications()
}

func (p *Participant) ClearNotifications() {
	p.NotificationSent = nil
	p.NotifyAboutAcceptSent = nil
}

func (p *Participant) MarkDeleted(reason string, now time.Time) {
	p.Deleted = true
	p.DeletedReason = reason
	p.DeletedAt = &now
	p.UpdatedAt = now
}
