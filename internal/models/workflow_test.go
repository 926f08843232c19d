package models

import (
	"strings"
	"testing"
)

func validWorkflow() *Workflow {
	return &Workflow{
		Name: "CI",
		On:   []string{EventPush, EventPullRequest},
		Jobs: []Job{
			{
				ID: "test",
				Steps: []Step{
					{Name: "Run tests", Run: "pytest -v"},
				},
			},
		},
	}
}

func TestWorkflowValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Workflow)
		wantErr string
	}{
		{
			name:   "valid workflow",
			mutate: func(w *Workflow) {},
		},
		{
			name:    "missing name",
			mutate:  func(w *Workflow) { w.Name = "" },
			wantErr: "workflow name is required",
		},
		{
			name:    "no jobs",
			mutate:  func(w *Workflow) { w.Jobs = nil },
			wantErr: "workflow has no jobs",
		},
		{
			name:    "unknown trigger event",
			mutate:  func(w *Workflow) { w.On = []string{"deploy"} },
			wantErr: `unknown trigger event "deploy"`,
		},
		{
			name: "job without steps",
			mutate: func(w *Workflow) {
				w.Jobs = append(w.Jobs, Job{ID: "lint"})
			},
			wantErr: "job lint has no steps",
		},
		{
			name: "duplicate job id",
			mutate: func(w *Workflow) {
				w.Jobs = append(w.Jobs, w.Jobs[0])
			},
			wantErr: `duplicate job id "test"`,
		},
		{
			name: "unknown needs reference",
			mutate: func(w *Workflow) {
				w.Jobs[0].Needs = []string{"build"}
			},
			wantErr: `job test needs unknown job "build"`,
		},
		{
			name: "self-referencing needs",
			mutate: func(w *Workflow) {
				w.Jobs[0].Needs = []string{"test"}
			},
			wantErr: "cyclic needs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWorkflow()
			tt.mutate(w)
			err := w.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStepValidate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{"run step", Step{Run: "make test"}, false},
		{"guard step", Step{Guard: &GuardSpec{Marker: "DO NOT SUBMIT"}}, false},
		{"empty step", Step{}, true},
		{"both run and guard", Step{Run: "ls", Guard: &GuardSpec{Marker: "x"}}, true},
		{"guard without marker", Step{Guard: &GuardSpec{}}, true},
		{"negative timeout", Step{Run: "ls", TimeoutMinutes: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasCyclicNeeds(t *testing.T) {
	step := []Step{{Run: "true"}}

	tests := []struct {
		name string
		jobs []Job
		want bool
	}{
		{
			name: "no dependencies",
			jobs: []Job{
				{ID: "a", Steps: step},
				{ID: "b", Steps: step},
			},
			want: false,
		},
		{
			name: "linear chain",
			jobs: []Job{
				{ID: "a", Steps: step},
				{ID: "b", Needs: []string{"a"}, Steps: step},
				{ID: "c", Needs: []string{"b"}, Steps: step},
			},
			want: false,
		},
		{
			name: "diamond",
			jobs: []Job{
				{ID: "a", Steps: step},
				{ID: "b", Needs: []string{"a"}, Steps: step},
				{ID: "c", Needs: []string{"a"}, Steps: step},
				{ID: "d", Needs: []string{"b", "c"}, Steps: step},
			},
			want: false,
		},
		{
			name: "two-node cycle",
			jobs: []Job{
				{ID: "a", Needs: []string{"b"}, Steps: step},
				{ID: "b", Needs: []string{"a"}, Steps: step},
			},
			want: true,
		},
		{
			name: "self reference",
			jobs: []Job{
				{ID: "a", Needs: []string{"a"}, Steps: step},
			},
			want: true,
		},
		{
			name: "cycle deep in chain",
			jobs: []Job{
				{ID: "a", Steps: step},
				{ID: "b", Needs: []string{"a", "d"}, Steps: step},
				{ID: "c", Needs: []string{"b"}, Steps: step},
				{ID: "d", Needs: []string{"c"}, Steps: step},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCyclicNeeds(tt.jobs); got != tt.want {
				t.Errorf("HasCyclicNeeds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkflowTriggersOn(t *testing.T) {
	w := validWorkflow()

	if !w.TriggersOn(EventPush) {
		t.Error("expected workflow to trigger on push")
	}
	if !w.TriggersOn(EventPullRequest) {
		t.Error("expected workflow to trigger on pull_request")
	}
	if w.TriggersOn(EventSchedule) {
		t.Error("did not expect workflow to trigger on schedule")
	}

	w.On = nil
	if w.TriggersOn(EventPush) {
		t.Error("workflow with empty on list should trigger on nothing")
	}
}

func TestJobDisplayName(t *testing.T) {
	j := Job{ID: "test"}
	if got := j.DisplayName(); got != "test" {
		t.Errorf("DisplayName() = %q, want %q", got, "test")
	}
	j.Name = "Unit tests"
	if got := j.DisplayName(); got != "Unit tests" {
		t.Errorf("DisplayName() = %q, want %q", got, "Unit tests")
	}
}
