package domain

import (
	"errors"
	"reflect"
	"testing"
)

func ptrString(s string) *string { return &s }

func sampleBoard() Board {
	return Board{Phases: []Phase{
		{ID: "p1", Title: "Foundation", Steps: []Step{
			{ID: "s1", Title: "Repo", Activity: "init repo", Status: StatusToDo, Agent: DefaultAgent, SubTasks: []SubTask{}},
			{ID: "s2", Title: "Backend", Activity: "init node", Status: StatusToDo, Agent: DefaultAgent, SubTasks: []SubTask{}},
		}},
		{ID: "p2", Title: "API", Steps: []Step{
			{ID: "s3", Title: "Schema", Activity: "design schema", Status: StatusInProgress, Agent: "ana", SubTasks: []SubTask{{ID: "st1", Title: "users"}}},
		}},
	}}
}

func TestUpdateStepChangesOnlyTarget(t *testing.T) {
	before := sampleBoard()
	snapshot := sampleBoard()
	done := StatusDone

	after := UpdateStep(before, 0, 1, StepPatch{Status: &done, Agent: ptrString("bo")})

	got := after.Phases[0].Steps[1]
	if got.Status != StatusDone || got.Agent != "bo" {
		t.Fatalf("target not updated: %#v", got)
	}
	if got.Activity != "init node" || got.Title != "Backend" {
		t.Fatalf("untouched fields changed: %#v", got)
	}
	if !reflect.DeepEqual(after.Phases[0].Steps[0], snapshot.Phases[0].Steps[0]) {
		t.Fatalf("sibling step changed: %#v", after.Phases[0].Steps[0])
	}
	if !reflect.DeepEqual(after.Phases[1], snapshot.Phases[1]) {
		t.Fatalf("other phase changed: %#v", after.Phases[1])
	}
	if !reflect.DeepEqual(before, snapshot) {
		t.Fatalf("input board mutated: %#v", before)
	}
}

func TestUpdateStepEveryIndex(t *testing.T) {
	base := sampleBoard()
	for p := range base.Phases {
		for s := range base.Phases[p].Steps {
			title := "renamed"
			after := UpdateStep(base, p, s, StepPatch{Title: &title})
			for pi := range base.Phases {
				for si := range base.Phases[pi].Steps {
					want := base.Phases[pi].Steps[si]
					if pi == p && si == s {
						want.Title = title
					}
					if !reflect.DeepEqual(after.Phases[pi].Steps[si], want) {
						t.Fatalf("update (%d,%d): step (%d,%d) = %#v, want %#v", p, s, pi, si, after.Phases[pi].Steps[si], want)
					}
				}
			}
		}
	}
}

func TestUpdateStepSubTasksAreCopied(t *testing.T) {
	base := sampleBoard()
	subs := []SubTask{{ID: "a", Title: "first"}}
	after := UpdateStep(base, 0, 0, StepPatch{SubTasks: subs})
	subs[0].Title = "mutated"
	if after.Phases[0].Steps[0].SubTasks[0].Title != "first" {
		t.Fatalf("board shares caller slice: %#v", after.Phases[0].Steps[0].SubTasks)
	}
}

func TestUpdateStepOutOfRangePanics(t *testing.T) {
	tests := []struct {
		name        string
		phase, step int
	}{
		{name: "negative phase", phase: -1, step: 0},
		{name: "phase past end", phase: 2, step: 0},
		{name: "step past end", phase: 1, step: 1},
		{name: "negative step", phase: 0, step: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic for (%d,%d)", tt.phase, tt.step)
				}
			}()
			UpdateStep(sampleBoard(), tt.phase, tt.step, StepPatch{})
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"To Do", "In Progress", "Done"} {
		if _, err := ParseStatus(s); err != nil {
			t.Fatalf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseStatus("ToDo"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestProgressOf(t *testing.T) {
	b := sampleBoard()
	if p := ProgressOf(b); p.TotalSteps != 3 || p.CompletedSteps != 0 || p.ProgressPercentage != 0 {
		t.Fatalf("unexpected progress: %#v", p)
	}
	done := StatusDone
	b = UpdateStep(b, 0, 0, StepPatch{Status: &done})
	if p := ProgressOf(b); p.CompletedSteps != 1 || p.ProgressPercentage != 33 {
		t.Fatalf("unexpected progress: %#v", p)
	}
	b = UpdateStep(b, 0, 1, StepPatch{Status: &done})
	if p := ProgressOf(b); p.ProgressPercentage != 67 {
		t.Fatalf("expected rounding to 67, got %#v", p)
	}
	if p := ProgressOf(Board{}); p != (Progress{}) {
		t.Fatalf("empty board progress: %#v", p)
	}
}

func TestStepPatchEmpty(t *testing.T) {
	if !(StepPatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
	if (StepPatch{Agent: ptrString("")}).Empty() {
		t.Fatal("patch setting agent to empty string is not empty")
	}
}
