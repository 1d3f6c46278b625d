package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/iwvelando/goalseek/internal/config"
	"github.com/iwvelando/goalseek/internal/journal"
	"github.com/iwvelando/goalseek/internal/logging"
	"github.com/iwvelando/goalseek/internal/optimizer"
	"github.com/iwvelando/goalseek/pkg/constants"
	"github.com/iwvelando/goalseek/pkg/output"
	"github.com/iwvelando/goalseek/pkg/solver"
	"github.com/iwvelando/goalseek/pkg/validation"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type options struct {
	configLocation string
	problem        string
	outputFormat   string
	logLevel       string
	journalPath    string
	apply          bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("goalseek", pflag.ContinueOnError)
	flags.StringVarP(&opts.configLocation, "config", "c", constants.DefaultConfigFile, "path to configuration file")
	flags.StringVarP(&opts.problem, "problem", "p", "", "solve only the named problem")
	flags.StringVarP(&opts.outputFormat, "output-format", "o", "", "type of output override: pretty, csv, json")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&opts.journalPath, "journal", "", "journal database override")
	flags.BoolVar(&opts.apply, "apply", false, "write converged parameter values back to the model")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": %q}\n", err.Error())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	conf, err := config.LoadConfiguration(opts.configLocation)
	if err != nil {
		return fmt.Errorf("failed to load configuration at %s: %w", opts.configLocation, err)
	}

	logger, err := logging.New(conf.Logging, opts.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// CLI override takes precedence over config
	outputFormat := conf.Output.Format
	if opts.outputFormat != "" {
		outputFormat = opts.outputFormat
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		return err
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	problems, err := conf.Selected(opts.problem)
	if err != nil {
		return err
	}

	progress := func(percent int, message string) {
		logger.Debug("solver progress",
			zap.String("op", "main"),
			zap.Int("percent", percent),
			zap.String("message", message),
		)
	}

	progress(0, "loading model")
	m := conf.Model.Open(logger)
	if err := m.Load(ctx); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	loaded := true
	defer func() {
		if loaded {
			_ = m.Unload(false)
		}
	}()

	s, err := solver.NewSolver(logger, m, conf.Solver, solver.WithProgress(progress))
	if err != nil {
		return err
	}

	var runnerOpts []optimizer.Option
	journalPath := conf.Journal.Path
	if opts.journalPath != "" {
		journalPath = opts.journalPath
	}
	if journalPath != "" {
		store, err := journal.Open(logger, journalPath)
		if err != nil {
			return err
		}
		defer func() {
			_ = store.Close()
		}()
		runnerOpts = append(runnerOpts, optimizer.WithRecorder(store))
	}

	runner, err := optimizer.NewRunner(logger, s, runnerOpts...)
	if err != nil {
		return err
	}
	results, err := runner.Run(ctx, problems)
	if err != nil {
		return fmt.Errorf("failed to solve: %w", err)
	}

	if err := output.Write(stdout, outputFormat, results); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if !opts.apply {
		return nil
	}
	values := optimizer.Recommended(results)
	if len(values) == 0 {
		logger.Warn("nothing to apply; no problem converged",
			zap.String("op", "main"),
		)
		return nil
	}
	if conf.Model.Inline() {
		logger.Warn("model cells are inline in the configuration; applied values are not persisted",
			zap.String("op", "main"),
		)
	}
	if err := m.Apply(values); err != nil {
		return err
	}
	loaded = false
	if err := m.Unload(true); err != nil {
		return fmt.Errorf("failed to persist model: %w", err)
	}
	return nil
}
