package structurer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
)

type fakeGenerator struct {
	out     string
	err     error
	prompts []string
	schemas []Schema
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, schema Schema) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.schemas = append(f.schemas, schema)
	return f.out, f.err
}

const validBoardJSON = `{"phases":[
 {"id":"phase-i","title":"Foundation","steps":[
  {"id":"step-1-1","title":"Repo","activity":"Decide on a monorepo.","considerations":"Lerna","output":"Repo"},
  {"id":"step-1-1","title":"Backend","activity":"Init node.","considerations":"Express","output":"package.json"}
 ]},
 {"id":"phase-i","title":"API","steps":[]}
]}`

func TestStructureDefaultsAndFreshIDs(t *testing.T) {
	gen := &fakeGenerator{out: validBoardJSON}
	b, err := New(gen).Structure(context.Background(), "Phase I: ...")
	if err != nil {
		t.Fatalf("structure: %v", err)
	}
	if len(b.Phases) != 2 || len(b.Phases[0].Steps) != 2 || len(b.Phases[1].Steps) != 0 {
		t.Fatalf("unexpected shape: %#v", b)
	}

	ids := map[string]bool{}
	for _, p := range b.Phases {
		if !strings.HasPrefix(p.ID, "phase-") || ids[p.ID] {
			t.Fatalf("bad phase id %q", p.ID)
		}
		ids[p.ID] = true
		for _, s := range p.Steps {
			if !strings.HasPrefix(s.ID, "step-") || ids[s.ID] {
				t.Fatalf("bad step id %q", s.ID)
			}
			ids[s.ID] = true
			if s.Status != domain.StatusToDo || s.Agent != domain.DefaultAgent || s.SubTasks == nil || len(s.SubTasks) != 0 {
				t.Fatalf("defaults not applied: %#v", s)
			}
		}
	}
	if b.Phases[0].Steps[0].Activity != "Decide on a monorepo." {
		t.Fatalf("activity lost: %#v", b.Phases[0].Steps[0])
	}
	if !strings.Contains(gen.prompts[0], "Phase I: ...") || gen.schemas[0].Properties["phases"].Type != "ARRAY" {
		t.Fatal("prompt or schema not passed to generator")
	}
}

func TestStructureEmptyInputSkipsModel(t *testing.T) {
	gen := &fakeGenerator{out: validBoardJSON}
	_, err := New(gen).Structure(context.Background(), "  \n\t")
	var inputErr *domain.InputValidationError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputValidationError, got %v", err)
	}
	if len(gen.prompts) != 0 {
		t.Fatal("model must not be called for empty input")
	}
}

func TestStructureFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{name: "upstream error", gen: &fakeGenerator{err: errors.New("503")}},
		{name: "malformed json", gen: &fakeGenerator{out: `{"phases":[`}},
		{name: "missing phases", gen: &fakeGenerator{out: `{}`}},
		{name: "missing step output", gen: &fakeGenerator{out: `{"phases":[{"id":"p","title":"t","steps":[{"id":"s","title":"t","activity":"a","considerations":"c"}]}]}`}},
		{name: "wrong type", gen: &fakeGenerator{out: `{"phases":[{"id":"p","title":7,"steps":[]}]}`}},
		{name: "missing phase id", gen: &fakeGenerator{out: `{"phases":[{"title":"t","steps":[]}]}`}},
		{name: "missing step id", gen: &fakeGenerator{out: `{"phases":[{"id":"p","title":"t","steps":[{"title":"t","activity":"a","considerations":"c","output":"o"}]}]}`}},
		{name: "null steps", gen: &fakeGenerator{out: `{"phases":[{"id":"p","title":"t","steps":null}]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.gen).Structure(context.Background(), "plan")
			var sErr *domain.StructuringError
			if !errors.As(err, &sErr) {
				t.Fatalf("expected StructuringError, got %v", err)
			}
		})
	}
}

func TestElaborate(t *testing.T) {
	gen := &fakeGenerator{out: `{"suggestions":[{"title":"Use Lerna","description":"Manage packages."},{"title":"Add CI","description":"Run tests."}]}`}
	got, err := New(gen).Elaborate(context.Background(), domain.FieldConsiderations, "Monorepo?")
	if err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	if len(got) != 2 || got[1].Title != "Add CI" {
		t.Fatalf("unexpected suggestions: %#v", got)
	}
	if !strings.Contains(gen.prompts[0], `Section Title: "Considerations"`) || !strings.Contains(gen.prompts[0], "Monorepo?") {
		t.Fatalf("unexpected prompt: %s", gen.prompts[0])
	}
}

func TestElaborateRejectsInvalidShapes(t *testing.T) {
	for name, out := range map[string]string{
		"not json":            `nope`,
		"no suggestions":      `{"ideas":[]}`,
		"missing description": `{"suggestions":[{"title":"a","description":"b"},{"title":"c"}]}`,
		"numeric title":       `{"suggestions":[{"title":1,"description":"b"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(&fakeGenerator{out: out}).Elaborate(context.Background(), domain.FieldOutput, "x")
			var elErr *domain.ElaborationError
			if !errors.As(err, &elErr) || elErr.Section != "Output" {
				t.Fatalf("expected ElaborationError for Output, got %v", err)
			}
		})
	}
}

func TestSamplePlanIsStructurable(t *testing.T) {
	if !strings.Contains(SamplePlan, "Phase I: Foundation & Core Setup") {
		t.Fatal("sample plan missing first phase")
	}
	gen := &fakeGenerator{out: validBoardJSON}
	if _, err := New(gen).Structure(context.Background(), SamplePlan); err != nil {
		t.Fatalf("structure sample: %v", err)
	}
}
