package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	runcore "github.com/glubean/runcore"
	"github.com/glubean/runcore/exitcodes"
	"github.com/glubean/runcore/flags"
	"github.com/glubean/runcore/registry"
	"github.com/glubean/runcore/service"
	"github.com/glubean/runcore/types"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "runcore"
	app.Usage = "Glubean Runner Execution Service"
	app.Description = "runcore dispatches glubean runner tasks and applies their results"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if runcore.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if runcore.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context) error {
	logLevel := log.LevelInfo
	if ctx.Bool(flags.LogVerbose.Name) {
		logLevel = log.LevelDebug
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, logLevel, true))
	log.SetDefault(logger)

	cfg, err := runcore.NewConfig(ctx, logger)
	if err != nil {
		return runcore.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	reg, err := registry.NewRegistry(registry.Config{Log: logger, TasksFile: cfg.TasksFile})
	if err != nil {
		return runcore.NewRuntimeError(fmt.Errorf("failed to load tasks: %w", err))
	}

	if cfg.MetricsAddr != "" {
		svc := service.New()
		svc.Start(ctx.Context, "", cfg.MetricsAddr)
		defer svc.Shutdown()
	}

	sink := runcore.NewLogSink(logger, os.Stdout)
	orch, err := runcore.NewOrchestrator(cfg, reg, sink)
	if err != nil {
		return runcore.NewRuntimeError(fmt.Errorf("failed to create orchestrator: %w", err))
	}

	// Single-task mode bypasses the scheduler entirely.
	if cfg.TaskName != "" {
		task, ok := reg.Task(cfg.TaskName)
		if !ok {
			return runcore.NewRuntimeError(fmt.Errorf("unknown task %q", cfg.TaskName))
		}
		report, err := orch.RunTask(ctx.Context, types.RunRequest{
			TaskName: task.Name,
			Command:  task.Command,
			Args:     task.Args,
			WorkDir:  cfg.WorkDir,
			Debug:    cfg.Debug,
		}, nil)
		if err != nil {
			return err
		}
		return runcore.BatchVerdict([]runcore.RunReport{*report})
	}

	scheduler := runcore.NewScheduler(cfg.RunInterval, cfg.RunOnce, logger, func(c context.Context) ([]runcore.RunReport, error) {
		return orch.RunAll(c, nil)
	})

	// In run-once mode Start returns the batch verdict directly; in
	// continuous mode batch verdicts never stop the loop.
	if err := scheduler.Start(ctx.Context); err != nil || cfg.RunOnce {
		return err
	}

	<-ctx.Context.Done()
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return scheduler.WaitForShutdown(shutdownCtx)
}
