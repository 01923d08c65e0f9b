package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pkglens/internal/collector"
	"github.com/blackwell-systems/pkglens/internal/config"
	"github.com/blackwell-systems/pkglens/internal/conflicts"
	"github.com/blackwell-systems/pkglens/internal/history"
	"github.com/blackwell-systems/pkglens/internal/logging"
	"github.com/blackwell-systems/pkglens/internal/manager"
	"github.com/blackwell-systems/pkglens/internal/state"
	"github.com/blackwell-systems/pkglens/internal/verifier"
)

// pipeline is the assembled component graph every command runs against.
type pipeline struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *state.Store
	registry  *manager.Registry
	collector *collector.Collector
	verifier  *verifier.Verifier
	scanner   *conflicts.Scanner
	tracker   *history.Tracker
}

// buildPipeline loads configuration, applies global flag overrides, and
// wires the components together.
func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flagStateDir != "" {
		cfg.StateDir = flagStateDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if conflictsRulesFile != "" {
		cfg.RulesFile = conflictsRulesFile
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	store, err := state.New(cfg.StateDir, log.Named("state"))
	if err != nil {
		return nil, err
	}

	table, err := conflicts.LoadVersionConflicts(cfg.RulesFile)
	if err != nil {
		log.Warn("conflict rules file unusable, using built-in table", zap.Error(err))
		table = conflicts.DefaultVersionConflicts()
	}

	registry := manager.NewRegistry(cfg.CommandTimeout, log)
	run := manager.NewRunner(cfg.CommandTimeout)

	return &pipeline{
		cfg:       cfg,
		log:       log,
		store:     store,
		registry:  registry,
		collector: collector.New(registry, log.Named("collector")),
		verifier:  verifier.New(registry, store, cfg.VerifyWorkers, log.Named("verifier")),
		scanner:   conflicts.New(run, table, log.Named("conflicts")),
		tracker:   history.New(store, log.Named("history")),
	}, nil
}

// close flushes buffered log entries. Sync errors on stderr are expected
// on some platforms and ignored.
func (p *pipeline) close() {
	_ = p.log.Sync()
}

// parseIdentityArgs converts "<manager> <name>" positional args.
func parseIdentityArgs(args []string) (manager.Identity, error) {
	m, err := manager.ParseManager(args[0])
	if err != nil {
		return manager.Identity{}, err
	}
	if args[1] == "" {
		return manager.Identity{}, fmt.Errorf("package name is required")
	}
	return manager.Identity{Manager: m, Name: args[1]}, nil
}
