package sanitize

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy removes all tags and attributes.
var strictPolicy = bluemonday.StrictPolicy()

// Text strips markup from user-supplied plain text such as place titles and
// descriptions. Entities escaped by the policy are decoded again so that
// "Fish & Chips" round-trips unchanged.
func Text(input string) string {
	return html.UnescapeString(strictPolicy.Sanitize(input))
}
