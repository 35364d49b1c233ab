// Package config assembles the application components the CLI commands run
// against: ledger store, matching engine, orchestrator and reporter.
package config

import (
	"io"

	"bank-reconciliation-service/internal/ledger"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/internal/reporter"
	apperrors "bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// App bundles the wired components for one CLI invocation.
type App struct {
	Store        *ledger.SQLiteStore
	Orchestrator *reconciler.Orchestrator
	Reporter     *reporter.Reporter
	Logger       logger.Logger
}

// Options carries the settings every command shares.
type Options struct {
	DatabasePath string
	OutputFormat string
	Verbose      bool
	Output       io.Writer
}

// Build opens the ledger database and wires the engine, orchestrator and
// reporter. The caller owns App.Close.
func Build(opts Options) (*App, error) {
	if opts.DatabasePath == "" {
		return nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "database", nil)
	}

	format := reporter.Format(opts.OutputFormat)
	switch format {
	case "", reporter.FormatText, reporter.FormatJSON:
	default:
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "output-format", opts.OutputFormat)
	}

	logConfig := logger.DefaultConfig()
	if opts.Verbose {
		logConfig.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "logging", err.Error())
	}
	logger.SetGlobalLogger(log)

	store, err := ledger.NewSQLiteStore(opts.DatabasePath)
	if err != nil {
		return nil, err
	}

	engine := matcher.NewEngine(store, matcher.NewRegistry(), log)
	return &App{
		Store:        store,
		Orchestrator: reconciler.New(store, engine, log),
		Reporter:     reporter.New(opts.Output, format),
		Logger:       log,
	}, nil
}

// Close releases the application's resources.
func (a *App) Close() error {
	return a.Store.Close()
}
