package domain

import "fmt"

// Status is the progress state of a step.
type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

// DefaultAgent is assigned to every freshly structured step.
const DefaultAgent = "Unassigned"

// ParseStatus validates a wire status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusToDo, StatusInProgress, StatusDone:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Board is the structured representation of a project plan. Phase order is
// display order.
type Board struct {
	Phases []Phase `json:"phases"`
}

// Phase groups ordered steps.
type Phase struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// Step is a single unit of work on the board.
type Step struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Activity       string    `json:"activity"`
	Considerations string    `json:"considerations"`
	Output         string    `json:"output"`
	Status         Status    `json:"status"`
	Agent          string    `json:"agent"`
	SubTasks       []SubTask `json:"subTasks"`
}

// SubTask is a checklist entry of a step.
type SubTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// StepPatch carries partial step updates. Nil fields are left untouched.
type StepPatch struct {
	Title          *string   `json:"title,omitempty"`
	Activity       *string   `json:"activity,omitempty"`
	Considerations *string   `json:"considerations,omitempty"`
	Output         *string   `json:"output,omitempty"`
	Status         *Status   `json:"status,omitempty"`
	Agent          *string   `json:"agent,omitempty"`
	SubTasks       []SubTask `json:"subTasks,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p StepPatch) Empty() bool {
	return p.Title == nil && p.Activity == nil && p.Considerations == nil &&
		p.Output == nil && p.Status == nil && p.Agent == nil && p.SubTasks == nil
}

// Merge returns s with the patch applied.
func (p StepPatch) Merge(s Step) Step {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Activity != nil {
		s.Activity = *p.Activity
	}
	if p.Considerations != nil {
		s.Considerations = *p.Considerations
	}
	if p.Output != nil {
		s.Output = *p.Output
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Agent != nil {
		s.Agent = *p.Agent
	}
	if p.SubTasks != nil {
		s.SubTasks = append([]SubTask(nil), p.SubTasks...)
	}
	return s
}

// HasStep reports whether the indices address a step of b.
func (b Board) HasStep(phaseIndex, stepIndex int) bool {
	if phaseIndex < 0 || phaseIndex >= len(b.Phases) {
		return false
	}
	return stepIndex >= 0 && stepIndex < len(b.Phases[phaseIndex].Steps)
}

// Step returns the addressed step. It panics on out-of-range indices.
func (b Board) Step(phaseIndex, stepIndex int) Step {
	mustHaveStep(b, phaseIndex, stepIndex)
	return b.Phases[phaseIndex].Steps[stepIndex]
}

// UpdateStep returns a new board where only the addressed step is replaced by
// patch merged over it. Every other phase and step keeps its value and the
// input board is never modified. Indices are always derived from the board
// itself, so out-of-range indices are a programming error and panic.
func UpdateStep(b Board, phaseIndex, stepIndex int, patch StepPatch) Board {
	mustHaveStep(b, phaseIndex, stepIndex)

	phases := make([]Phase, len(b.Phases))
	copy(phases, b.Phases)

	target := phases[phaseIndex]
	steps := make([]Step, len(target.Steps))
	copy(steps, target.Steps)
	steps[stepIndex] = patch.Merge(steps[stepIndex])
	target.Steps = steps
	phases[phaseIndex] = target

	return Board{Phases: phases}
}

func mustHaveStep(b Board, phaseIndex, stepIndex int) {
	if !b.HasStep(phaseIndex, stepIndex) {
		panic(fmt.Sprintf("domain: step index out of range: phase=%d step=%d", phaseIndex, stepIndex))
	}
}

// Progress summarises step completion across the board.
type Progress struct {
	TotalSteps         int `json:"totalSteps"`
	CompletedSteps     int `json:"completedSteps"`
	ProgressPercentage int `json:"progressPercentage"`
}

// ProgressOf counts done steps and rounds the completion percentage.
func ProgressOf(b Board) Progress {
	var p Progress
	for _, phase := range b.Phases {
		for _, step := range phase.Steps {
			p.TotalSteps++
			if step.Status == StatusDone {
				p.CompletedSteps++
			}
		}
	}
	if p.TotalSteps > 0 {
		p.ProgressPercentage = (p.CompletedSteps*200 + p.TotalSteps) / (2 * p.TotalSteps)
	}
	return p
}
