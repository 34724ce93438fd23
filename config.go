package runcore

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"
	"github.com/glubean/runcore/flags"
)

// Default knobs of the dispatch lifecycle. Flags can override the timeout;
// the grace period is deliberately fixed.
const (
	DefaultRunTimeout  = 5 * time.Minute
	DefaultResultGrace = 500 * time.Millisecond
)

// Config holds the application configuration
type Config struct {
	TasksFile          string
	TaskName           string        // Single task to run; empty means the full batch
	WorkDir            string        // Workspace root the runner is spawned in
	ArtifactPath       string        // Result artifact path, relative to WorkDir
	StorePath          string        // Last-run record store path
	RunTimeout         time.Duration // Per-dispatch timeout
	ResultGrace        time.Duration // Wait after process exit before giving up on a result
	RunInterval        time.Duration // Interval between batch runs
	RunOnce            bool          // Indicates if the service should exit after one batch
	Debug              bool          // Launch the runner under the inspector
	DebugPortBase      int           // First port probed when picking an inspector port
	DebugSafetyTimeout time.Duration // Upper bound on how long a debug session may linger
	MetricsAddr        string        // Address for the metrics/healthz server; empty disables it
	Log                log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	tasksFile := ctx.String(flags.TasksFile.Name)
	if tasksFile == "" {
		return nil, errors.New("tasks file is required")
	}
	absTasksFile, err := filepath.Abs(tasksFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for tasks file '%s': %w", tasksFile, err)
	}

	workDir := ctx.String(flags.WorkDir.Name)
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for workdir '%s': %w", workDir, err)
	}

	runTimeout := ctx.Duration(flags.RunTimeout.Name)
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	storePath := ctx.String(flags.StorePath.Name)
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(absWorkDir, storePath)
	}

	return &Config{
		TasksFile:          absTasksFile,
		TaskName:           ctx.String(flags.TaskName.Name),
		WorkDir:            absWorkDir,
		ArtifactPath:       ctx.String(flags.ArtifactPath.Name),
		StorePath:          storePath,
		RunTimeout:         runTimeout,
		ResultGrace:        DefaultResultGrace,
		RunInterval:        runInterval,
		RunOnce:            runOnce,
		Debug:              ctx.Bool(flags.Debug.Name),
		DebugPortBase:      ctx.Int(flags.DebugPortBase.Name),
		DebugSafetyTimeout: 5 * time.Minute,
		MetricsAddr:        ctx.String(flags.MetricsAddr.Name),
		Log:                log,
	}, nil
}

// Validate checks the configuration is usable before any run is dispatched.
func (c *Config) Validate() error {
	if c.TasksFile == "" {
		return errors.New("tasks file is required")
	}
	if c.WorkDir == "" {
		return errors.New("workdir is required")
	}
	if c.ArtifactPath == "" {
		return errors.New("artifact path is required")
	}
	if c.RunTimeout <= 0 {
		return errors.New("run timeout must be positive")
	}
	if c.DebugPortBase <= 0 || c.DebugPortBase > 65535 {
		return fmt.Errorf("invalid debug port base: %d", c.DebugPortBase)
	}
	return nil
}
