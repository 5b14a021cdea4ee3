package executor

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"pybuild/fs"
	"pybuild/target"
)

// TargetRunner executes targets from a registry, one at a time, in dependency
// order. Sequencing is the only concurrency control: the filesystem is shared
// between steps, so clean must fully finish before compile starts.
type TargetRunner struct {
	registry    target.Registry
	fs          fs.FileSystem
	cmdExecutor CommandExecutor
	statusMgr   StatusManager
	log         zerolog.Logger
}

func NewTargetRunner(registry target.Registry, filesystem fs.FileSystem, cmdExecutor CommandExecutor, statusMgr StatusManager, log zerolog.Logger) *TargetRunner {
	return &TargetRunner{
		registry:    registry,
		fs:          filesystem,
		cmdExecutor: cmdExecutor,
		statusMgr:   statusMgr,
		log:         log,
	}
}

// StatusManager exposes the runner's status tracker, for the status UI.
func (tr *TargetRunner) StatusManager() StatusManager {
	return tr.statusMgr
}

// Run resolves the requested targets' prerequisites and executes each required
// target exactly once. It fails with UnknownTargetError or
// CyclicDependencyError before any command runs, and with CommandFailedError
// on the first non-zero exit status; nothing after the failure executes.
func (tr *TargetRunner) Run(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, ok := tr.registry[name]; !ok {
			return &UnknownTargetError{Target: name}
		}
	}

	dag := NewDAGManager()
	for name, t := range tr.registry {
		dag.AddNode(name, t.Deps)
	}

	order, err := dag.Sort(names...)
	if err != nil {
		return err
	}

	for _, name := range order {
		tr.statusMgr.SetStatus(name, StatusQueued)
	}

	for i, name := range order {
		tr.statusMgr.UpdateStatus(name, StatusRunning, time.Now(), time.Time{})

		if err := tr.runTarget(ctx, tr.registry[name]); err != nil {
			tr.statusMgr.UpdateStatus(name, StatusFailed, time.Time{}, time.Now())
			for _, rest := range order[i+1:] {
				tr.statusMgr.UpdateStatus(rest, StatusSkipped, time.Time{}, time.Now())
			}
			return err
		}

		tr.statusMgr.UpdateStatus(name, StatusCompleted, time.Time{}, time.Now())
	}

	return nil
}

func (tr *TargetRunner) runTarget(ctx context.Context, t *target.Target) error {
	log := tr.log.With().Str("target", t.Name).Logger()

	if len(t.Steps) == 0 {
		log.Debug().Msg("aggregator target, nothing to run")
		return nil
	}

	for _, step := range t.Steps {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "target %s interrupted", t.Name)
		}

		files, skip, err := tr.expandFiles(step)
		if err != nil {
			return errors.Wrapf(err, "target %s: failed to expand pattern %s", t.Name, step.Files)
		}
		if skip {
			log.Debug().Str("pattern", step.Files).Msg("no files matched, skipping step")
			continue
		}

		log.Info().Str("cmd", step.Cmd).Int("files", len(files)).Msg("running")

		code, err := tr.cmdExecutor.Execute(ctx, step.Cmd, files)
		if err != nil {
			return errors.Wrapf(err, "target %s", t.Name)
		}
		if code != 0 {
			return &CommandFailedError{Target: t.Name, Cmd: step.Cmd, ExitCode: code}
		}
	}

	return nil
}

// expandFiles resolves a step's file set at the moment of execution. The set
// is never cached across targets: an earlier target may have changed the tree.
func (tr *TargetRunner) expandFiles(step target.Step) (files []string, skip bool, err error) {
	if step.Files == "" {
		return nil, false, nil
	}

	matches, err := tr.fs.DoublestarGlob(step.Files)
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, true, nil
	}

	sort.Strings(matches)
	return matches, false, nil
}
