// Package structurer turns free-form plan text into a board and produces
// suggestions for step sections, using a JSON-mode language model.
package structurer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
)

// Structurer validates model output into domain values.
type Structurer struct {
	gen Generator
}

func New(gen Generator) *Structurer {
	return &Structurer{gen: gen}
}

// Structure parses rawText into a board. Phase and step ids are always
// regenerated and interactive fields get their defaults.
func (s *Structurer) Structure(ctx context.Context, rawText string) (domain.Board, error) {
	if strings.TrimSpace(rawText) == "" {
		return domain.Board{}, domain.ErrEmptyInput
	}
	out, err := s.gen.Generate(ctx, buildStructurePrompt(rawText), workflowSchema)
	if err != nil {
		return domain.Board{}, &domain.StructuringError{Err: err}
	}
	b, err := decodeBoard([]byte(out))
	if err != nil {
		return domain.Board{}, &domain.StructuringError{Err: err}
	}
	return b, nil
}

// Elaborate asks for suggestions on one section of a step.
func (s *Structurer) Elaborate(ctx context.Context, field domain.Field, text string) ([]domain.Suggestion, error) {
	section := field.Label()
	out, err := s.gen.Generate(ctx, buildElaboratePrompt(section, text), suggestionSchema)
	if err != nil {
		return nil, &domain.ElaborationError{Section: section, Err: err}
	}
	suggestions, err := decodeSuggestions([]byte(out))
	if err != nil {
		return nil, &domain.ElaborationError{Section: section, Err: err}
	}
	return suggestions, nil
}

type rawBoard struct {
	Phases *[]rawPhase `json:"phases"`
}

type rawPhase struct {
	ID    *string    `json:"id"`
	Title *string    `json:"title"`
	Steps *[]rawStep `json:"steps"`
}

type rawStep struct {
	ID             *string `json:"id"`
	Title          *string `json:"title"`
	Activity       *string `json:"activity"`
	Considerations *string `json:"considerations"`
	Output         *string `json:"output"`
}

var errInvalidShape = errors.New("invalid response structure")

func missing(path string) error {
	return fmt.Errorf("%w: missing %s", errInvalidShape, path)
}

func decodeBoard(data []byte) (domain.Board, error) {
	var raw rawBoard
	if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
		return domain.Board{}, fmt.Errorf("decode board: %w", err)
	}
	if raw.Phases == nil {
		return domain.Board{}, missing("phases")
	}

	phases := make([]domain.Phase, 0, len(*raw.Phases))
	for i, rp := range *raw.Phases {
		if rp.ID == nil {
			return domain.Board{}, missing(fmt.Sprintf("phases[%d].id", i))
		}
		if rp.Title == nil {
			return domain.Board{}, missing(fmt.Sprintf("phases[%d].title", i))
		}
		if rp.Steps == nil {
			return domain.Board{}, missing(fmt.Sprintf("phases[%d].steps", i))
		}
		steps := make([]domain.Step, 0, len(*rp.Steps))
		for j, rs := range *rp.Steps {
			path := fmt.Sprintf("phases[%d].steps[%d]", i, j)
			switch {
			case rs.ID == nil:
				return domain.Board{}, missing(path + ".id")
			case rs.Title == nil:
				return domain.Board{}, missing(path + ".title")
			case rs.Activity == nil:
				return domain.Board{}, missing(path + ".activity")
			case rs.Considerations == nil:
				return domain.Board{}, missing(path + ".considerations")
			case rs.Output == nil:
				return domain.Board{}, missing(path + ".output")
			}
			steps = append(steps, domain.Step{
				ID:             "step-" + uuid.NewString(),
				Title:          *rs.Title,
				Activity:       *rs.Activity,
				Considerations: *rs.Considerations,
				Output:         *rs.Output,
				Status:         domain.StatusToDo,
				Agent:          domain.DefaultAgent,
				SubTasks:       []domain.SubTask{},
			})
		}
		phases = append(phases, domain.Phase{
			ID:    "phase-" + uuid.NewString(),
			Title: *rp.Title,
			Steps: steps,
		})
	}
	return domain.Board{Phases: phases}, nil
}

type rawSuggestions struct {
	Suggestions *[]struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	} `json:"suggestions"`
}

func decodeSuggestions(data []byte) ([]domain.Suggestion, error) {
	var raw rawSuggestions
	if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if raw.Suggestions == nil {
		return nil, missing("suggestions")
	}
	out := make([]domain.Suggestion, 0, len(*raw.Suggestions))
	for i, rs := range *raw.Suggestions {
		if rs.Title == nil || rs.Description == nil {
			return nil, missing(fmt.Sprintf("suggestions[%d].title/description", i))
		}
		out = append(out, domain.Suggestion{Title: *rs.Title, Description: *rs.Description})
	}
	return out, nil
}
