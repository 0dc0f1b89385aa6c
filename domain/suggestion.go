package domain

import (
	"fmt"
	"strings"
	"time"
)

// Field names a free-text section of a step that can be elaborated.
type Field string

const (
	FieldActivity       Field = "activity"
	FieldConsiderations Field = "considerations"
	FieldOutput         Field = "output"
)

// ParseField validates an elaboration target.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldActivity, FieldConsiderations, FieldOutput:
		return Field(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidField, s)
}

// Value returns the text of f in s.
func (f Field) Value(s Step) string {
	switch f {
	case FieldActivity:
		return s.Activity
	case FieldConsiderations:
		return s.Considerations
	case FieldOutput:
		return s.Output
	}
	panic("domain: unknown field " + string(f))
}

// Label is the section name shown to the model and in the UI.
func (f Field) Label() string {
	switch f {
	case FieldActivity:
		return "Activity"
	case FieldConsiderations:
		return "Considerations"
	case FieldOutput:
		return "Output"
	}
	return string(f)
}

// Patch builds a step patch that sets f to text.
func (f Field) Patch(text string) StepPatch {
	switch f {
	case FieldActivity:
		return StepPatch{Activity: &text}
	case FieldConsiderations:
		return StepPatch{Considerations: &text}
	case FieldOutput:
		return StepPatch{Output: &text}
	}
	panic("domain: unknown field " + string(f))
}

// Suggestion is a model-generated idea for a step field.
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

const (
	// ProvenanceLabel opens every block of appended suggestions.
	ProvenanceLabel = "✨ Suggestions from AI"

	provenanceMarker = "\n\n> " + ProvenanceLabel

	// ProvenanceTimeLayout formats the merge time in the provenance header.
	ProvenanceTimeLayout = "1/2/2006, 3:04:05 PM"
)

// ProvenanceHeader renders the quoted header line for a merge made at t.
func ProvenanceHeader(t time.Time) string {
	return "> " + ProvenanceLabel + " (" + t.Format(ProvenanceTimeLayout) + ")"
}

// RenderSuggestion renders s as a quoted markdown block.
func RenderSuggestion(s Suggestion) string {
	return "> **" + s.Title + "**\n>\n> " + s.Description
}

// ApplySuggestions appends the rendered suggestions below text behind a
// provenance header. With no suggestions text is returned unchanged.
func ApplySuggestions(text string, suggestions []Suggestion, at time.Time) string {
	if len(suggestions) == 0 {
		return text
	}
	blocks := make([]string, len(suggestions))
	for i, s := range suggestions {
		blocks[i] = RenderSuggestion(s)
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	b.WriteString(ProvenanceHeader(at))
	b.WriteString("\n>\n")
	b.WriteString(strings.Join(blocks, "\n>\n"))
	return b.String()
}

// Sections is a field split into user-authored and AI-appended parts.
type Sections struct {
	Original string `json:"original"`
	Appended string `json:"appended,omitempty"`
}

// SplitProvenance splits text at the first provenance marker. Appended keeps
// the quoted header and every later merge.
func SplitProvenance(text string) Sections {
	i := strings.Index(text, provenanceMarker)
	if i < 0 {
		return Sections{Original: text}
	}
	return Sections{Original: text[:i], Appended: text[i+2:]}
}

