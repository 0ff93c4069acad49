// Package runner prepares an SDK checkout at a given revision and runs
// commands inside its installed environment.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/qcompat/internal/sdk"
)

// Runner checks out, installs and runs.
type Runner interface {
	// Checkout switches the SDK repository to revision (a tag or branch).
	Checkout(ctx context.Context, revision string) error
	// Install installs the checked-out SDK, which is then reported to
	// commands as version.
	Install(ctx context.Context, version string) error
	// Run runs args in the installed environment. A non-zero exit is not an
	// error; it is reported in Result. ctx's deadline bounds the run.
	Run(ctx context.Context, args []string) (Result, error)
}

// Result is the outcome of Run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Succeeded reports a zero exit within the deadline.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

var (
	DefaultInstallCommand = []string{"poetry", "install", "--all-extras"}
	DefaultEnvPathCommand = []string{"poetry", "env", "info", "--path"}
)

// DefaultWaitDelay bounds how long Run waits for output after the process
// is killed.
const DefaultWaitDelay = 5 * time.Second

// Shell is a Runner that shells out to git and a package manager.
type Shell struct {
	dir            string
	git            string
	installCommand []string
	envPathCommand []string
	env            []string
	stream         io.Writer
	waitDelay      time.Duration
	logger         *slog.Logger

	installed string
	envPath   string
}

// Option configures a Shell.
type Option func(*Shell)

// WithInstallCommand replaces DefaultInstallCommand.
func WithInstallCommand(args ...string) Option {
	return func(s *Shell) { s.installCommand = args }
}

// WithEnvPathCommand replaces DefaultEnvPathCommand. With no args, commands
// run in the ambient environment.
func WithEnvPathCommand(args ...string) Option {
	return func(s *Shell) { s.envPathCommand = args }
}

// WithGit sets the git executable.
func WithGit(path string) Option {
	return func(s *Shell) { s.git = path }
}

// WithEnv adds KEY=VALUE entries to every command's environment.
func WithEnv(env ...string) Option {
	return func(s *Shell) { s.env = append(s.env, env...) }
}

// WithStream copies checkout and install output to w as it is produced.
func WithStream(w io.Writer) Option {
	return func(s *Shell) { s.stream = w }
}

// WithWaitDelay replaces DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(s *Shell) { s.waitDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shell) { s.logger = l }
}

// NewShell returns a Shell working in the SDK repository at dir.
func NewShell(dir string, opts ...Option) *Shell {
	s := &Shell{
		dir:            dir,
		git:            "git",
		installCommand: DefaultInstallCommand,
		envPathCommand: DefaultEnvPathCommand,
		waitDelay:      DefaultWaitDelay,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Shell) Checkout(ctx context.Context, revision string) error {
	s.logger.Debug("checking out", "revision", revision, "dir", s.dir)
	out, err := s.setup(ctx, []string{s.git, "checkout", revision}, s.environ(""))
	if err != nil {
		return &SetupError{Stage: StageCheckout, Revision: revision, Output: out, Err: err}
	}
	return nil
}

func (s *Shell) Install(ctx context.Context, version string) error {
	s.installed = ""
	s.envPath = ""

	s.logger.Debug("installing", "version", version, "command", strings.Join(s.installCommand, " "))
	out, err := s.setup(ctx, s.installCommand, s.environ(""))
	if err != nil {
		return &SetupError{Stage: StageInstall, Revision: version, Output: out, Err: err}
	}

	if len(s.envPathCommand) > 0 {
		envPath, err := s.lookupEnvPath(ctx)
		if err != nil {
			return &SetupError{Stage: StageEnvironment, Revision: version, Err: err}
		}
		s.envPath = envPath
	}
	s.installed = version
	return nil
}

func (s *Shell) Run(ctx context.Context, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{}, errors.New("run: no command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.resolve(args[0]), args[1:]...)
	cmd.Dir = s.dir
	cmd.Env = append(s.environ(s.installed), traceEnv(ctx)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = s.waitDelay

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			res.TimedOut = true
			res.ExitCode = -1
			return res, nil
		}
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("run %s: %w", args[0], err)
	}
	return res, nil
}

// setup runs a setup command, returning its combined output.
func (s *Shell) setup(ctx context.Context, args []string, env []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("empty command")
	}
	var out bytes.Buffer
	w := io.Writer(&out)
	if s.stream != nil {
		w = io.MultiWriter(&out, s.stream)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = s.dir
	cmd.Env = env
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.WaitDelay = s.waitDelay

	err := cmd.Run()
	return out.String(), err
}

func (s *Shell) lookupEnvPath(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.envPathCommand[0], s.envPathCommand[1:]...)
	cmd.Dir = s.dir
	cmd.Env = s.environ("")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", strings.Join(s.envPathCommand, " "), err, strings.TrimSpace(stderr.String()))
	}

	path := strings.TrimSpace(stdout.String())
	if path == "" {
		return "", nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("environment %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("environment %s is not a directory", path)
	}
	return path, nil
}

// resolve prefers the installed environment's bin directory for bare
// command names; exec looks names up on this process's PATH otherwise.
func (s *Shell) resolve(name string) string {
	if s.envPath == "" || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	candidate := filepath.Join(s.envPath, "bin", name)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return name
}

// environ builds a command environment. Later entries win.
func (s *Shell) environ(installed string) []string {
	env := append(os.Environ(), s.env...)
	if installed != "" {
		env = append(env, sdk.VersionEnv+"="+installed)
	}
	if s.envPath != "" {
		env = append(env,
			"VIRTUAL_ENV="+s.envPath,
			"PATH="+filepath.Join(s.envPath, "bin")+string(os.PathListSeparator)+os.Getenv("PATH"),
		)
	}
	return env
}
