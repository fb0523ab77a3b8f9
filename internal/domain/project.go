package domain

import (
	"fmt"
	"regexp"
	"time"
)

var shortIDPattern = regexp.MustCompile(`^[A-Z]{3,6}[0-9]{2,4}$`)

// Project is the accepted project a flow belongs to. Review and voting live
// outside this module; only the statuses the flow touches are modelled.
type Project struct {
	ID        string
	ShortID   string
	Name      string
	Status    ProjectStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateShortID checks that ShortID is non-empty and matches the required
// format: 3-6 uppercase letters followed by 2-4 digits (e.g. REF01, LEAD0234).
func (p *Project) ValidateShortID() error {
	if p.ShortID == "" {
		return fmt.Errorf("short ID is required (use --id flag)")
	}
	if !shortIDPattern.MatchString(p.ShortID) {
		return fmt.Errorf("short ID %q must be 3-6 uppercase letters followed by 2-4 digits (e.g. REF01)", p.ShortID)
	}
	return nil
}

// DisplayID returns the best short identifier for display.
// It prefers ShortID; if empty it truncates ID to 8 characters.
func (p *Project) DisplayID() string {
	if p.ShortID != "" {
		return p.ShortID
	}
	if len(p.ID) >= 8 {
		return p.ID[:8]
	}
	return p.ID
}

type User struct {
	ID        string
	Name      string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}

// Candidate places a user in a project's ordered pool of flow participants.
type Candidate struct {
	ProjectID string
	UserID    string
	Position  int
	CreatedAt time.Time
}
