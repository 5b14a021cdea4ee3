package executor

import (
	"context"
	"errors"
	"testing"

	"pybuild/fs/mock"
	"pybuild/target"
)

// MockCommandExecutor implements the CommandExecutor interface for testing
type MockCommandExecutor struct {
	ExecuteFunc func(ctx context.Context, cmdLine string, files []string) (int, error)
	Calls       []ExecutedCall
}

type ExecutedCall struct {
	Cmd   string
	Files []string
}

func (m *MockCommandExecutor) Execute(ctx context.Context, cmdLine string, files []string) (int, error) {
	m.Calls = append(m.Calls, ExecutedCall{Cmd: cmdLine, Files: files})
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, cmdLine, files)
	}
	return 0, nil
}

func newTestRunner(registry target.Registry, filesystem *mock.MockFileSystem, cmdExecutor *MockCommandExecutor) *TargetRunner {
	return NewTargetRunner(registry, filesystem, cmdExecutor, NewStatusManager(), testLogger())
}

func TestRun_DiamondDependencyRunsOnce(t *testing.T) {
	registry := target.Registry{
		"a": {Name: "a", Deps: []string{"b", "c"}, Steps: []target.Step{{Cmd: "run-a"}}},
		"b": {Name: "b", Deps: []string{"d"}, Steps: []target.Step{{Cmd: "run-b"}}},
		"c": {Name: "c", Deps: []string{"d"}, Steps: []target.Step{{Cmd: "run-c"}}},
		"d": {Name: "d", Steps: []target.Step{{Cmd: "run-d"}}},
	}

	cmdExecutor := &MockCommandExecutor{}
	tr := newTestRunner(registry, mock.NewMockFileSystem(), cmdExecutor)

	if err := tr.Run(context.Background(), "a"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	counts := make(map[string]int)
	for _, call := range cmdExecutor.Calls {
		counts[call.Cmd]++
	}

	for _, cmd := range []string{"run-a", "run-b", "run-c", "run-d"} {
		if counts[cmd] != 1 {
			t.Errorf("Expected %s to run exactly once, ran %d times", cmd, counts[cmd])
		}
	}

	if cmdExecutor.Calls[0].Cmd != "run-d" {
		t.Errorf("Expected shared dependency to run first, got %s", cmdExecutor.Calls[0].Cmd)
	}
	if last := cmdExecutor.Calls[len(cmdExecutor.Calls)-1].Cmd; last != "run-a" {
		t.Errorf("Expected requested target to run last, got %s", last)
	}
}

func TestRun_CycleExecutesNoCommands(t *testing.T) {
	registry := target.Registry{
		"a": {Name: "a", Deps: []string{"b"}, Steps: []target.Step{{Cmd: "run-a"}}},
		"b": {Name: "b", Deps: []string{"c"}, Steps: []target.Step{{Cmd: "run-b"}}},
		"c": {Name: "c", Deps: []string{"a"}, Steps: []target.Step{{Cmd: "run-c"}}},
	}

	cmdExecutor := &MockCommandExecutor{}
	tr := newTestRunner(registry, mock.NewMockFileSystem(), cmdExecutor)

	err := tr.Run(context.Background(), "a")

	var cycleErr *CyclicDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("Expected CyclicDependencyError, got %v", err)
	}
	if len(cmdExecutor.Calls) != 0 {
		t.Errorf("Expected zero commands executed, got %d", len(cmdExecutor.Calls))
	}
}

func TestRun_UnknownTargetExecutesNoCommands(t *testing.T) {
	registry := target.Registry{
		"a": {Name: "a", Steps: []target.Step{{Cmd: "run-a"}}},
	}

	cmdExecutor := &MockCommandExecutor{}
	tr := newTestRunner(registry, mock.NewMockFileSystem(), cmdExecutor)

	err := tr.Run(context.Background(), "nonexistent")

	var unknownErr *UnknownTargetError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Expected UnknownTargetError, got %v", err)
	}
	if unknownErr.Target != "nonexistent" {
		t.Errorf("Expected error to name 'nonexistent', got %q", unknownErr.Target)
	}
	if len(cmdExecutor.Calls) != 0 {
		t.Errorf("Expected zero commands executed, got %d", len(cmdExecutor.Calls))
	}
}

func TestRun_UnknownDependencyExecutesNoCommands(t *testing.T) {
	registry := target.Registry{
		"a": {Name: "a", Deps: []string{"missing"}, Steps: []target.Step{{Cmd: "run-a"}}},
	}

	cmdExecutor := &MockCommandExecutor{}
	tr := newTestRunner(registry, mock.NewMockFileSystem(), cmdExecutor)

	err := tr.Run(context.Background(), "a")

	var unknownErr *UnknownTargetError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Expected UnknownTargetError, got %v", err)
	}
	if len(cmdExecutor.Calls) != 0 {
		t.Errorf("Expected zero commands executed, got %d", len(cmdExecutor.Calls))
	}
}

func TestRun_EmptyFileSetIsSuccessfulNoop(t *testing.T) {
	registry := target.Registry{
		"clean": {Name: "clean", Steps: []target.Step{
			{Cmd: "rm -f", Files: "**/*.pyc"},
			{Cmd: "rm -rf", Files: "**/__pycache__"},
		}},
	}

	cmdExecutor := &MockCommandExecutor{}
	tr := newTestRunner(registry, mock.NewMockFileSystem(), cmdExecutor)

	// Twice in a row: both runs succeed, neither runs a command.
	for i := 0; i < 2; i++ {
		if err := tr.Run(context.Background(), "clean"); err != nil {
			t.Fatalf("Run %d failed: %v", i+1, err)
		}
	}

	if len(cmdExecutor.Calls) != 0 {
		t.Errorf("Expected zero commands executed for empty file sets, got %d", len(cmdExecutor.Calls))
	}
}

func TestRun_StepWithoutFilesAlwaysRuns(t *testing.T) {
	registry := target.Registry{
		"install": {Name: "install", Steps: []target.Step{{Cmd: "pip3 install ."}}},
	}

	cmdExecutor := &MockCommandExecutor{}
	tr := newTestRunner(registry, mock.NewMockFileSystem(), cmdExecutor)

	if err := tr.Run(context.Background(), "install"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(cmdExecutor.Calls) != 1 {
		t.Fatalf("Expected one command executed, got %d", len(cmdExecutor.Calls))
	}
	if len(cmdExecutor.Calls[0].Files) != 0 {
		t.Errorf("Expected no file arguments, got %v", cmdExecutor.Calls[0].Files)
	}
}

func TestRun_FileSetExpandedAtExecutionTime(t *testing.T) {
	filesystem := mock.NewMockFileSystem()
	filesystem.AddFile("pkg/a.py", nil)
	filesystem.AddFile("pkg/a.pyc", nil)

	registry := target.Registry{
		"clean":   {Name: "clean", Steps: []target.Step{{Cmd: "rm -f", Files: "**/*.pyc"}}},
		"compile": {Name: "compile", Deps: []string{"clean"}, Steps: []target.Step{{Cmd: "compile", Files: "**/*.pyc"}}},
	}

	cmdExecutor := &MockCommandExecutor{
		ExecuteFunc: func(ctx context.Context, cmdLine string, files []string) (int, error) {
			if cmdLine == "rm -f" {
				for _, f := range files {
					filesystem.RemoveFile(f)
				}
			}
			return 0, nil
		},
	}

	tr := newTestRunner(registry, filesystem, cmdExecutor)

	if err := tr.Run(context.Background(), "compile"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// clean removed the .pyc, so compile's glob must see an empty set and
	// skip; a cached file set would have handed it the stale path.
	if len(cmdExecutor.Calls) != 1 {
		t.Fatalf("Expected only the clean command to run, got %d calls", len(cmdExecutor.Calls))
	}
	if cmdExecutor.Calls[0].Cmd != "rm -f" {
		t.Errorf("Expected rm -f, got %s", cmdExecutor.Calls[0].Cmd)
	}
}

func TestRun_FailFastStopsRemainingCommands(t *testing.T) {
	registry := target.Registry{
		"lint": {Name: "lint", Steps: []target.Step{
			{Cmd: "step-one"},
			{Cmd: "step-two"},
		}},
		"all": {Name: "all", Deps: []string{"lint"}, Steps: []target.Step{{Cmd: "step-three"}}},
	}

	cmdExecutor := &MockCommandExecutor{
		ExecuteFunc: func(ctx context.Context, cmdLine string, files []string) (int, error) {
			if cmdLine == "step-one" {
				return 3, nil
			}
			return 0, nil
		},
	}

	tr := newTestRunner(registry, mock.NewMockFileSystem(), cmdExecutor)

	err := tr.Run(context.Background(), "all")

	var cmdErr *CommandFailedError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Expected CommandFailedError, got %v", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", cmdErr.ExitCode)
	}
	if cmdErr.Target != "lint" || cmdErr.Cmd != "step-one" {
		t.Errorf("Expected failure attributed to lint/step-one, got %s/%s", cmdErr.Target, cmdErr.Cmd)
	}
	if len(cmdExecutor.Calls) != 1 {
		t.Errorf("Expected no commands after the failure, got %d calls", len(cmdExecutor.Calls))
	}
}

func TestRun_AggregatorReportsDependencyFailure(t *testing.T) {
	filesystem := mock.NewMockFileSystem()
	filesystem.AddFile("pkg/mod.py", nil)
	filesystem.AddFile("pkg/test_mod.py", nil)

	registry := target.Registry{
		"doctest":  {Name: "doctest", Steps: []target.Step{{Cmd: "python3 -m doctest", Files: "**/*.py"}}},
		"unittest": {Name: "unittest", Steps: []target.Step{{Cmd: "python3 -m unittest", Files: "**/test_*.py"}}},
		"test":     {Name: "test", Deps: []string{"doctest", "unittest"}},
	}

	cmdExecutor := &MockCommandExecutor{
		ExecuteFunc: func(ctx context.Context, cmdLine string, files []string) (int, error) {
			if cmdLine == "python3 -m unittest" {
				return 1, nil
			}
			return 0, nil
		},
	}

	statusMgr := NewStatusManager()
	tr := NewTargetRunner(registry, filesystem, cmdExecutor, statusMgr, testLogger())

	err := tr.Run(context.Background(), "test")

	var cmdErr *CommandFailedError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Expected CommandFailedError, got %v", err)
	}
	if cmdErr.Target != "unittest" || cmdErr.ExitCode != 1 {
		t.Errorf("Expected unittest failure with exit code 1, got %s/%d", cmdErr.Target, cmdErr.ExitCode)
	}

	// doctest ran and succeeded first, but its success is not the result.
	if len(cmdExecutor.Calls) != 2 {
		t.Fatalf("Expected two commands executed, got %d", len(cmdExecutor.Calls))
	}
	if cmdExecutor.Calls[0].Cmd != "python3 -m doctest" {
		t.Errorf("Expected doctest first, got %s", cmdExecutor.Calls[0].Cmd)
	}

	if status := statusMgr.Status("doctest").Status; status != StatusCompleted {
		t.Errorf("Expected doctest status Completed, got %s", status)
	}
	if status := statusMgr.Status("unittest").Status; status != StatusFailed {
		t.Errorf("Expected unittest status Failed, got %s", status)
	}
	if status := statusMgr.Status("test").Status; status != StatusSkipped {
		t.Errorf("Expected test status Skipped, got %s", status)
	}
}

func TestRun_FileArgumentsAreSortedMatches(t *testing.T) {
	filesystem := mock.NewMockFileSystem()
	filesystem.AddFile("b.py", nil)
	filesystem.AddFile("a.py", nil)
	filesystem.AddFile("README.md", nil)

	registry := target.Registry{
		"compile": {Name: "compile", Steps: []target.Step{{Cmd: "python3 -m py_compile", Files: "**/*.py"}}},
	}

	cmdExecutor := &MockCommandExecutor{}
	tr := newTestRunner(registry, filesystem, cmdExecutor)

	if err := tr.Run(context.Background(), "compile"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(cmdExecutor.Calls) != 1 {
		t.Fatalf("Expected one command executed, got %d", len(cmdExecutor.Calls))
	}
	files := cmdExecutor.Calls[0].Files
	if len(files) != 2 || files[0] != "a.py" || files[1] != "b.py" {
		t.Errorf("Expected sorted python files [a.py b.py], got %v", files)
	}
}

func TestRun_CanceledContextStopsRun(t *testing.T) {
	registry := target.Registry{
		"lint": {Name: "lint", Steps: []target.Step{{Cmd: "step-one"}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmdExecutor := &MockCommandExecutor{}
	tr := newTestRunner(registry, mock.NewMockFileSystem(), cmdExecutor)

	if err := tr.Run(ctx, "lint"); err == nil {
		t.Fatal("Expected an error from a canceled context")
	}
	if len(cmdExecutor.Calls) != 0 {
		t.Errorf("Expected zero commands executed, got %d", len(cmdExecutor.Calls))
	}
}
