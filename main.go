package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	tea "github.com/charmbracelet/bubbletea"

	"pybuild/config"
	"pybuild/executor"
	"pybuild/fs"
	"pybuild/target"
)

const defaultConfigPath = "pybuild.star"

func main() {
	configPath := flag.String("c", defaultConfigPath, "Starlark build file (optional)")
	workDir := flag.String("C", "", "Run as if started in this directory")
	list := flag.Bool("list", false, "List known targets and exit")
	ui := flag.Bool("ui", false, "Show a live status view instead of streaming output")
	python := flag.String("python", "python3", "Python interpreter to invoke")
	pip := flag.String("pip", "pip3", "Installer to invoke for the install target")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if *verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	if *workDir != "" {
		if err := os.Chdir(*workDir); err != nil {
			logger.Error().Err(err).Msg("cannot change working directory")
			os.Exit(2)
		}
	}

	registry, err := loadRegistry(*configPath, *python, *pip)
	if err != nil {
		logger.Error().Err(err).Msg("cannot load build configuration")
		os.Exit(2)
	}

	if *list {
		printTargets(registry)
		return
	}

	names := flag.Args()
	if len(names) == 0 {
		names = []string{"test"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	statusMgr := executor.NewStatusManager()
	cmdExecutor := &executor.ShellCommandExecutor{}
	var captured bytes.Buffer
	if *ui {
		// Keep command output off the terminal while the TUI owns it.
		cmdExecutor.Stdout = &captured
		cmdExecutor.Stderr = &captured
	}

	runner := executor.NewTargetRunner(registry, fs.RealFileSystem{}, cmdExecutor, statusMgr, logger)

	if *ui {
		err = runWithUI(ctx, runner, names)
	} else {
		err = runner.Run(ctx, names...)
	}

	if err != nil {
		if captured.Len() > 0 {
			fmt.Fprint(os.Stderr, captured.String())
		}
		logger.Error().Err(err).Msg("build failed")
		os.Exit(exitCode(err))
	}
}

// loadRegistry builds the default target table and overlays the Starlark
// config when present. A missing file is only an error when the user pointed
// at it explicitly.
func loadRegistry(configPath, python, pip string) (target.Registry, error) {
	registry := target.DefaultRegistry(python, pip)

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) && configPath == defaultConfigPath {
			return registry, nil
		}
		return nil, errors.Wrapf(err, "cannot read config file %s", configPath)
	}

	parsed, err := config.ParseStarlarkConfig(configPath)
	if err != nil {
		return nil, err
	}

	return config.Merge(registry, parsed), nil
}

func printTargets(registry target.Registry) {
	names := maps.Keys(registry)
	slices.Sort(names)

	for _, name := range names {
		t := registry[name]
		if len(t.Deps) > 0 {
			fmt.Printf("%-12s (deps: %s)\n", name, strings.Join(t.Deps, ", "))
		} else {
			fmt.Println(name)
		}
	}
}

func exitCode(err error) int {
	var cmdErr *executor.CommandFailedError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return cmdErr.ExitCode
	}

	var unknownErr *executor.UnknownTargetError
	var cycleErr *executor.CyclicDependencyError
	if errors.As(err, &unknownErr) || errors.As(err, &cycleErr) {
		return 2
	}

	return 1
}

func runWithUI(ctx context.Context, runner *executor.TargetRunner, names []string) error {
	var (
		runErr error
		wg     sync.WaitGroup
	)

	p := tea.NewProgram(initialModel(runner.StatusManager()))

	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = runner.Run(ctx, names...)
		p.Send(doneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "error running status view")
	}

	wg.Wait()
	return runErr
}

type model struct {
	viewport  viewport.Model
	statusMgr executor.StatusManager
	done      bool
}

type (
	tickMsg time.Time
	doneMsg struct{}
)

func initialModel(statusMgr executor.StatusManager) *model {
	return &model{
		viewport:  viewport.New(80, 24),
		statusMgr: statusMgr,
	}
}

func (m *model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 1
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tickMsg:
		if !m.done {
			return m, tickCmd()
		}
	}
	return m, nil
}

func (m *model) View() string {
	m.viewport.SetContent(m.statusView())
	var sb strings.Builder
	sb.WriteString(m.viewport.View())
	sb.WriteString("\nPress q to quit")
	return sb.String()
}

func (m *model) statusView() string {
	snapshot := m.statusMgr.Snapshot()

	names := maps.Keys(snapshot)
	slices.Sort(names)

	var sb strings.Builder
	sb.WriteString("pybuild status\n\n")

	for _, name := range names {
		status := snapshot[name]

		var duration time.Duration
		if !status.EndTime.IsZero() {
			duration = status.EndTime.Sub(status.StartTime)
		} else if !status.StartTime.IsZero() {
			duration = time.Since(status.StartTime)
		}

		statusColor := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
		switch status.Status {
		case executor.StatusCompleted:
			statusColor = statusColor.Foreground(lipgloss.Color("82"))
		case executor.StatusFailed:
			statusColor = statusColor.Foreground(lipgloss.Color("160"))
		case executor.StatusSkipped:
			statusColor = statusColor.Foreground(lipgloss.Color("243"))
		}

		sb.WriteString(fmt.Sprintf(
			"%-20s | %-10s | %-10s\n",
			name,
			statusColor.Render(status.Status),
			duration.Round(time.Millisecond),
		))
	}

	return sb.String()
}
