package places

import (
	"strings"

	"github.com/Togather-Foundation/places/internal/geocoding"
)

// Place is a user-published location owned by exactly one user.
type Place struct {
	ID          string
	Title       string
	Description string
	Address     string
	Location    geocoding.Coordinates
	Image       string
	Creator     string
}

// Draft is the input for creating a place. Image is the reference of an
// already stored asset. Creator is the payload-supplied owner, if any; the
// verified requester always wins.
type Draft struct {
	Title       string
	Description string
	Address     string
	Image       string
	Creator     string
}

// Patch holds the mutable fields of a place. Nil or blank fields are left
// untouched, never cleared.
type Patch struct {
	Title       *string
	Description *string
}

// IsEmpty reports whether applying the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return blank(p.Title) && blank(p.Description)
}

// Apply copies present fields onto place and reports whether anything changed.
func (p Patch) Apply(place *Place) bool {
	changed := false
	if !blank(p.Title) && *p.Title != place.Title {
		place.Title = *p.Title
		changed = true
	}
	if !blank(p.Description) && *p.Description != place.Description {
		place.Description = *p.Description
		changed = true
	}
	return changed
}

// present drops blank fields so storage can treat nil as "keep".
func (p Patch) present() Patch {
	var out Patch
	if !blank(p.Title) {
		out.Title = p.Title
	}
	if !blank(p.Description) {
		out.Description = p.Description
	}
	return out
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
