package executor

import "fmt"

// UnknownTargetError reports a requested or referenced target name that has no
// definition in the registry.
type UnknownTargetError struct {
	Target string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target %q", e.Target)
}

// CyclicDependencyError reports a target that transitively requires itself.
type CyclicDependencyError struct {
	Target string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle through target %q", e.Target)
}

// CommandFailedError reports the first command of a run that exited non-zero.
// ExitCode is the failing command's own exit status and becomes the process
// exit code.
type CommandFailedError struct {
	Target   string
	Cmd      string
	ExitCode int
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("target %q: command %q exited with status %d", e.Target, e.Cmd, e.ExitCode)
}
