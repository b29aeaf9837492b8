package form

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

var strict = bluemonday.StrictPolicy()

// Sanitize strips markup from server-provided text before it reaches a
// terminal or a JSON view.
func Sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Label is the display name shown next to a control.
func Label(f domain.FieldDescriptor) string {
	if l := Sanitize(f.DisplayName); l != "" {
		return l
	}
	return f.Key
}

// Help is the secondary text of a control. Numeric bounds are advisory and
// appear here only.
func Help(f domain.FieldDescriptor) string {
	desc := Sanitize(f.Description)
	if f.Type != domain.FieldNumber {
		return desc
	}
	var bounds []string
	if f.Min != nil {
		bounds = append(bounds, "min "+formatNumber(*f.Min))
	}
	if f.Max != nil {
		bounds = append(bounds, "max "+formatNumber(*f.Max))
	}
	if len(bounds) == 0 {
		return desc
	}
	hint := strings.Join(bounds, ", ")
	if desc == "" {
		return hint
	}
	return fmt.Sprintf("%s (%s)", desc, hint)
}

// Placeholder mirrors the text-area hint: the description, or
// "Enter <name>...".
func Placeholder(f domain.FieldDescriptor) string {
	if d := Sanitize(f.Description); d != "" {
		return d
	}
	return "Enter " + strings.ToLower(Label(f)) + "..."
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// OutOfRange reports whether v is outside the advisory bounds.
func OutOfRange(f domain.FieldDescriptor, v float64) bool {
	return (f.Min != nil && v < *f.Min) || (f.Max != nil && v > *f.Max)
}
