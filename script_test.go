package threadshell

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.sh")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSubmitScript(t *testing.T) {
	s, err := New(2, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	// two placeholder jobs so the dependency ids exist
	if _, err := s.Submit("true", PriorityMedium); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit("true", PriorityMedium); err != nil {
		t.Fatal(err)
	}

	path := writeScript(t, strings.Join([]string{
		"# JOB_NAME: nightly-build",
		"# PRIORITY: HIGH",
		"# MEMORY_LIMIT: 2048",
		"# RUNTIME_LIMIT: 120",
		"# CORES: 2",
		"# DEPENDENCIES: 1, 2",
		"# just a plain comment",
		"make all",
	}, "\n") + "\n")

	j, err := s.SubmitScript(path)
	if err != nil {
		t.Fatal(err)
	}
	if j.Name != "nightly-build" {
		t.Fatalf("Name: got %q, want %q", j.Name, "nightly-build")
	}
	if j.Command != "make all" {
		t.Fatalf("Command: got %q, want %q", j.Command, "make all")
	}
	if j.Priority != PriorityHigh {
		t.Fatalf("Priority: got %v, want %v", j.Priority, PriorityHigh)
	}
	if j.Type != TypeBatch {
		t.Fatalf("Type: got %v, want %v", j.Type, TypeBatch)
	}
	wantLimits := ResourceLimits{
		MaxMemoryMB: 2048,
		MaxRuntime:  120 * time.Second,
		MaxCores:    2,
	}
	if j.Limits != wantLimits {
		t.Fatalf("Limits: got %+v, want %+v", j.Limits, wantLimits)
	}
	if got, want := j.DepIDs(), []int{1, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("deps: got %v, want %v", got, want)
	}
	// dependencies 1 and 2 haven't completed yet
	if j.Status != StatusWaitingDeps {
		t.Fatalf("Status: got %v, want %v", j.Status, StatusWaitingDeps)
	}
}

func TestSubmitScriptUnknownPriorityKeepsDefault(t *testing.T) {
	s, err := New(2, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	path := writeScript(t, "# PRIORITY: URGENT\necho hi\n")
	j, err := s.SubmitScript(path)
	if err != nil {
		t.Fatal(err)
	}
	if j.Priority != PriorityMedium {
		t.Fatalf("Priority: got %v, want %v", j.Priority, PriorityMedium)
	}
}

func TestSubmitScriptErrors(t *testing.T) {
	s, err := New(2, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		label   string
		content string
	}{
		{
			label:   "directives without a command",
			content: "# JOB_NAME: empty\n# PRIORITY: LOW\n",
		},
		{
			label:   "blank command line",
			content: "# PRIORITY: LOW\n\n",
		},
		{
			label:   "bad memory limit",
			content: "# MEMORY_LIMIT: lots\necho hi\n",
		},
		{
			label:   "bad dependency id",
			content: "# DEPENDENCIES: 1, x\necho hi\n",
		},
	}
	for _, c := range cases {
		path := writeScript(t, c.content)
		if _, err := s.SubmitScript(path); err == nil {
			t.Fatalf("%v: want error", c.label)
		}
	}
	if got := s.Stats().Submitted; got != 0 {
		t.Fatalf("failed scripts must not submit: got %v submitted", got)
	}

	if _, err := s.SubmitScript(filepath.Join(t.TempDir(), "missing.sh")); err == nil {
		t.Fatal("missing file: want error")
	}
}
