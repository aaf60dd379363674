package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	mtw "github.com/thomcc/miri-tools"
	"github.com/thomcc/miri-tools/exitcodes"
	"github.com/thomcc/miri-tools/flags"
	"github.com/thomcc/miri-tools/overrides"
	"github.com/thomcc/miri-tools/runner"
	"github.com/thomcc/miri-tools/service"
	"github.com/thomcc/miri-tools/types"
)

var (
	Version   = "v0.3.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "miri-tools"
	app.Usage = "Regression harness for the crates.io corpus under instrumented toolchains"
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Run the corpus under an instrumented toolchain and report outcomes",
			Flags:  flags.RunFlags,
			Action: runHost,
		},
		{
			Name:   "worker",
			Usage:  "Consume package specs on stdin and emit delimited results (runs inside an execution context)",
			Flags:  flags.WorkerFlags,
			Action: runWorker,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Per-package failures never surface here; anything that
			// does is a harness fault.
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func runHost(ctx *cli.Context) error {
	if err := flags.CheckRequired(ctx, flags.RunRequired); err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	variant, err := types.ParseToolVariant(ctx.String(flags.Tool.Name))
	if err != nil {
		return err
	}
	rerun, err := mtw.ParseRerunWhen(ctx.String(flags.RerunWhen.Name))
	if err != nil {
		return err
	}

	cfg := mtw.Config{
		Variant:         variant,
		Crates:          ctx.Int(flags.Crates.Name),
		CrateList:       ctx.String(flags.CrateList.Name),
		DumpPath:        ctx.String(flags.CrateDB.Name),
		Jobs:            ctx.Int(flags.Jobs.Name),
		MemoryLimitGB:   ctx.Int(flags.MemoryLimitGB.Name),
		RerunWhen:       rerun,
		TimeoutPerPhase: ctx.Duration(flags.TimeoutPerPhase.Name),
		LogDir:          ctx.String(flags.LogDir.Name),
		ReportFile:      ctx.String(flags.Report.Name),
		SkipImageBuild:  ctx.Bool(flags.SkipImageBuild.Name),
		Log:             log,
	}

	harness, err := mtw.NewHarness(cfg)
	if err != nil {
		return mtw.NewRuntimeError(err)
	}

	svc := service.New(log)
	svc.Start(ctx.Context)
	defer svc.Shutdown()

	rep, err := harness.Run(ctx.Context)
	if err != nil {
		return err
	}

	stats := rep.Stats()
	log.Infow("run complete",
		"tool", variant,
		"total", stats.Total,
		"passed", stats.Passed,
		"failed", stats.Failed,
		"timeouts", stats.Timeouts,
		"skipped", stats.Skipped,
	)
	return nil
}

func runWorker(ctx *cli.Context) error {
	if err := flags.CheckRequired(ctx, flags.WorkerRequired); err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	variant, err := types.ParseToolVariant(ctx.String(flags.Tool.Name))
	if err != nil {
		return err
	}

	delimiter := os.Getenv(types.EnvTestEndDelimiter)
	timeout := runner.DefaultPhaseTimeout
	if raw := os.Getenv("MIRI_TOOLS_PHASE_TIMEOUT"); raw != "" {
		timeout, err = time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid MIRI_TOOLS_PHASE_TIMEOUT %q: %w", raw, err)
		}
	}

	resolver, err := overrides.NewResolverFromFile(ctx.String(flags.Overrides.Name))
	if err != nil {
		return err
	}

	w, err := runner.NewWorker(runner.Config{
		Variant:      variant,
		WorkspaceDir: ctx.String(flags.Workspace.Name),
		Delimiter:    delimiter,
		Timeout:      timeout,
		Resolver:     resolver,
		Log:          log,
	}, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	return w.Run(ctx.Context)
}

func newLogger() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
