package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "RUNCORE"

// prefixEnvVars derives the env var names for a flag from the service prefix.
func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	TasksFile = &cli.StringFlag{
		Name:     "tasks-file",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("TASKS_FILE"),
		Usage:    "Path to the JSONC task source (eg. '.vscode/tasks.jsonc')",
	}
	TaskName = &cli.StringFlag{
		Name:    "task",
		Value:   "",
		EnvVars: prefixEnvVars("TASK"),
		Usage:   "Run a single named task instead of the full batch",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: prefixEnvVars("WORKDIR"),
		Usage:   "Workspace root the runner is spawned in",
	}
	ArtifactPath = &cli.StringFlag{
		Name:    "artifact-path",
		Value:   ".glubean/results.json",
		EnvVars: prefixEnvVars("ARTIFACT_PATH"),
		Usage:   "Result artifact path the runner writes, relative to the workspace root",
	}
	StorePath = &cli.StringFlag{
		Name:    "store-path",
		Value:   ".glubean/lastrun.json",
		EnvVars: prefixEnvVars("STORE_PATH"),
		Usage:   "Path of the last-run record store, relative to the workspace root",
	}
	RunTimeout = &cli.DurationFlag{
		Name:    "run-timeout",
		Value:   5 * time.Minute,
		EnvVars: prefixEnvVars("RUN_TIMEOUT"),
		Usage:   "Per-dispatch timeout before a run is marked timed out",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between batch runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Debug = &cli.BoolFlag{
		Name:    "debug",
		Value:   false,
		EnvVars: prefixEnvVars("DEBUG"),
		Usage:   "Launch the runner under the inspector and wait for a debugger",
	}
	DebugPortBase = &cli.IntFlag{
		Name:    "debug-port-base",
		Value:   9229,
		EnvVars: prefixEnvVars("DEBUG_PORT_BASE"),
		Usage:   "First port probed when picking an inspector port",
	}
	LogVerbose = &cli.BoolFlag{
		Name:    "verbose",
		Value:   false,
		EnvVars: prefixEnvVars("VERBOSE"),
		Usage:   "Enable debug logging",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "",
		EnvVars: prefixEnvVars("METRICS_ADDR"),
		Usage:   "Address to serve metrics and healthz on (eg. ':7300'). Empty disables the server.",
	}
)

var requiredFlags = []cli.Flag{
	TasksFile,
}

var optionalFlags = []cli.Flag{
	TaskName,
	WorkDir,
	ArtifactPath,
	StorePath,
	RunTimeout,
	RunInterval,
	Debug,
	DebugPortBase,
	LogVerbose,
	MetricsAddr,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
