package places

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestPatchApply(t *testing.T) {
	base := Place{ID: "p1", Title: "Empire State", Description: "Tall building", Address: "20 W 34th St"}

	tests := []struct {
		name        string
		patch       Patch
		wantChanged bool
		wantTitle   string
		wantDesc    string
	}{
		{name: "nil fields", patch: Patch{}, wantTitle: "Empire State", wantDesc: "Tall building"},
		{name: "blank fields are no-ops", patch: Patch{Title: strPtr(""), Description: strPtr("  ")}, wantTitle: "Empire State", wantDesc: "Tall building"},
		{name: "same value", patch: Patch{Title: strPtr("Empire State")}, wantTitle: "Empire State", wantDesc: "Tall building"},
		{name: "title only", patch: Patch{Title: strPtr("ESB")}, wantChanged: true, wantTitle: "ESB", wantDesc: "Tall building"},
		{name: "both", patch: Patch{Title: strPtr("ESB"), Description: strPtr("Very tall")}, wantChanged: true, wantTitle: "ESB", wantDesc: "Very tall"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			place := base
			changed := tt.patch.Apply(&place)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantTitle, place.Title)
			assert.Equal(t, tt.wantDesc, place.Description)
			assert.Equal(t, base.Address, place.Address)
		})
	}
}

func TestPatchIsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	assert.True(t, Patch{Title: strPtr(" ")}.IsEmpty())
	assert.False(t, Patch{Description: strPtr("words")}.IsEmpty())
}

func TestAuthorize(t *testing.T) {
	assert.NoError(t, Authorize("u1", "u1"))
	assert.ErrorIs(t, Authorize("u2", "u1"), ErrForbidden)
	assert.ErrorIs(t, Authorize("", ""), ErrForbidden)
	assert.ErrorIs(t, Authorize("", "u1"), ErrForbidden)
}
