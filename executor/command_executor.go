package executor

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// CommandExecutor interface for dependency injection and improved testability.
// Execute runs cmdLine with files appended as quoted arguments and returns the
// command's exit status. A non-nil error means the command could not be run at
// all (parse or setup failure), not that it exited non-zero.
type CommandExecutor interface {
	Execute(ctx context.Context, cmdLine string, files []string) (int, error)
}

// ShellCommandExecutor implements CommandExecutor through the mvdan.cc/sh
// interpreter, so command lines behave the same on every platform.
type ShellCommandExecutor struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

func (e *ShellCommandExecutor) Execute(ctx context.Context, cmdLine string, files []string) (int, error) {
	var sb strings.Builder
	sb.WriteString(cmdLine)
	for _, f := range files {
		quoted, err := syntax.Quote(f, syntax.LangPOSIX)
		if err != nil {
			return -1, errors.Wrapf(err, "cannot quote argument %q", f)
		}
		sb.WriteByte(' ')
		sb.WriteString(quoted)
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(sb.String()), cmdLine)
	if err != nil {
		return -1, errors.Wrapf(err, "failed to parse command %q", cmdLine)
	}

	runner, err := interp.New(
		interp.Dir(e.Dir),
		interp.Env(expand.ListEnviron(os.Environ()...)),
		interp.StdIO(nil, e.stdout(), e.stderr()),
	)
	if err != nil {
		return -1, errors.Wrap(err, "failed to initialize shell runner")
	}

	if err := runner.Run(ctx, file); err != nil {
		if status, ok := interp.IsExitStatus(err); ok {
			return int(status), nil
		}
		return -1, errors.Wrapf(err, "failed to run command %q", cmdLine)
	}

	return 0, nil
}

func (e *ShellCommandExecutor) stdout() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

func (e *ShellCommandExecutor) stderr() io.Writer {
	if e.Stderr != nil {
		return e.Stderr
	}
	return os.Stderr
}
