package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/alexanderramin/treeflow/internal/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSlot() *Participant {
	return &Participant{
		ID:                   "p1",
		MustBeRegisteredFrom: t0,
		AcceptStageStartsAt:  t0.Add(2 * time.Hour),
	}
}

func goodReferral() Referral {
	return Referral{URL: "https://ref.example.test/join", Name: "Ref Name", Login: "ref_login"}
}

func TestReferral_Validate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Referral)
		field string
	}{
		{"valid", func(*Referral) {}, ""},
		{"missing url", func(r *Referral) { r.URL = "" }, "referral_url"},
		{"relative url", func(r *Referral) { r.URL = "/join" }, "referral_url"},
		{"ftp url", func(r *Referral) { r.URL = "ftp://ref.example.test" }, "referral_url"},
		{"long url", func(r *Referral) { r.URL = "https://x.test/" + strings.Repeat("a", 250) }, "referral_url"},
		{"missing name", func(r *Referral) { r.Name = " " }, "referral_name"},
		{"missing login", func(r *Referral) { r.Login = "" }, "referral_login"},
		{"long login", func(r *Referral) { r.Login = strings.Repeat("l", 256) }, "referral_login"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := goodReferral()
			tt.edit(&ref)
			err := ref.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestParticipant_RegistrationOpen(t *testing.T) {
	p := openSlot()
	assert.False(t, p.RegistrationOpen(t0.Add(-time.Minute)))
	assert.True(t, p.RegistrationOpen(t0))
	assert.True(t, p.RegistrationOpen(t0.Add(119*time.Minute)))
	assert.False(t, p.RegistrationOpen(t0.Add(2*time.Hour)), "accept stage start closes the window")

	p.MarkDeleted("gone", t0)
	assert.False(t, p.RegistrationOpen(t0.Add(time.Minute)))
}

func TestParticipant_RegisterOnce(t *testing.T) {
	p := openSlot()
	now := t0.Add(10 * time.Minute)

	require.NoError(t, p.Register(goodReferral(), now))
	assert.True(t, p.Registered)
	assert.Equal(t, now, *p.RegisteredAt)
	assert.False(t, p.RegistrationOpen(now))

	assert.ErrorIs(t, p.Register(goodReferral(), now), ErrAlreadyRegistered)
}

func TestParticipant_RegisterInvalidLeavesSlot(t *testing.T) {
	p := openSlot()
	err := p.Register(Referral{URL: "nope"}, t0)
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, p.Registered)
	assert.Nil(t, p.RegisteredAt)
}

func TestParticipant_Resolved(t *testing.T) {
	p := openSlot()
	assert.False(t, p.Resolved())

	p.Accept("admin", t0)
	assert.True(t, p.Resolved())
	assert.Equal(t, "admin", *p.AcceptedBy)

	removed := openSlot()
	removed.MarkDeleted("left", t0)
	assert.False(t, removed.Resolved(), "removed without inheritor still blocks")
	heir := "p2"
	removed.ReplacedBy = &heir
	assert.True(t, removed.Resolved())
}

func TestParticipant_AcceptDurationOverride(t *testing.T) {
	p := openSlot()
	assert.Equal(t, time.Hour, p.AcceptDuration(time.Hour))
	assert.Equal(t, t0.Add(3*time.Hour), p.WhenAcceptationEnds(time.Hour))

	ext := 3 * time.Hour
	p.AcceptTimeOverride = &ext
	assert.Equal(t, ext, p.AcceptDuration(time.Hour))
	assert.Equal(t, t0.Add(5*time.Hour), p.WhenAcceptationEnds(time.Hour))
}

func TestParticipant_RetimeClearsNotifications(t *testing.T) {
	p := openSlot()
	p.Level = 1
	sent := t0
	p.NotificationSent = &sent
	p.NotifyAboutAcceptSent = &sent

	cfg := timing.Config{Registration: 2 * time.Hour, Accept: time.Hour, LevelOffsets: []time.Duration{0, 30 * time.Minute}}
	p.Retime(t0.Add(5*time.Hour), cfg)

	assert.Equal(t, t0.Add(5*time.Hour), p.MustBeRegisteredFrom)
	assert.Equal(t, t0.Add(7*time.Hour+30*time.Minute), p.AcceptStageStartsAt)
	assert.Nil(t, p.NotificationSent)
	assert.Nil(t, p.NotifyAboutAcceptSent)
}
