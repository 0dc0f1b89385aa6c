package structurer

// Schema is a Gemini response schema (an OpenAPI subset).
type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Items       *Schema           `json:"items,omitempty"`
	Required    []string          `json:"required,omitempty"`
}

func str(desc string) Schema {
	return Schema{Type: "STRING", Description: desc}
}

var workflowSchema = Schema{
	Type: "OBJECT",
	Properties: map[string]Schema{
		"phases": {
			Type:        "ARRAY",
			Description: "An array of project phases.",
			Items: &Schema{
				Type: "OBJECT",
				Properties: map[string]Schema{
					"id":    str("A unique identifier for the phase, e.g., 'phase-i'."),
					"title": str("The title of the project phase."),
					"steps": {
						Type:        "ARRAY",
						Description: "An array of steps or tasks within this phase.",
						Items: &Schema{
							Type: "OBJECT",
							Properties: map[string]Schema{
								"id":             str("A unique identifier for the step, e.g., 'step-1-1'."),
								"title":          str("A short title for the step, derived from the 'Activity'."),
								"activity":       str("The main activity or task for this step."),
								"considerations": str("Key considerations, tools, or frameworks for this step."),
								"output":         str("The expected output or deliverable for this step."),
							},
							Required: []string{"id", "title", "activity", "considerations", "output"},
						},
					},
				},
				Required: []string{"id", "title", "steps"},
			},
		},
	},
	Required: []string{"phases"},
}

var suggestionSchema = Schema{
	Type: "OBJECT",
	Properties: map[string]Schema{
		"suggestions": {
			Type:        "ARRAY",
			Description: "A list of actionable suggestions.",
			Items: &Schema{
				Type: "OBJECT",
				Properties: map[string]Schema{
					"title":       str("A short, descriptive title for the suggestion."),
					"description": str("A detailed description of the suggestion."),
				},
				Required: []string{"title", "description"},
			},
		},
	},
	Required: []string{"suggestions"},
}
