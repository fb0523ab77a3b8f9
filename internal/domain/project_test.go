package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateShortID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr string
	}{
		{"REF01", ""},
		{"DRIVE2026", ""},
		{"ABCDEF0001", ""},
		{"", "required"},
		{"ref01", "uppercase"},
		{"RF01", "uppercase"},
		{"REFERRAL01", "uppercase"},
		{"REFS", "uppercase"},
		{"REF12345", "uppercase"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := (&Project{ShortID: tt.id}).ValidateShortID()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDisplayID(t *testing.T) {
	assert.Equal(t, "REF01", (&Project{ID: "0b7c6d8e-1f2a-4b3c-9d4e-5f6a7b8c9d0e", ShortID: "REF01"}).DisplayID())
	assert.Equal(t, "0b7c6d8e", (&Project{ID: "0b7c6d8e-1f2a-4b3c-9d4e-5f6a7b8c9d0e"}).DisplayID())
	assert.Equal(t, "p1", (&Project{ID: "p1"}).DisplayID())
}

func TestActorFor(t *testing.T) {
	assert.True(t, ActorFor(&User{ID: "a", IsAdmin: true}).IsAdmin())
	m := ActorFor(&User{ID: "m"})
	assert.False(t, m.IsAdmin())
	assert.Equal(t, "m", m.UserID)
}
