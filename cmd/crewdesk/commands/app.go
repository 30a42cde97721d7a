package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/config"
	"github.com/stagecrew/crewdesk/pkg/engine"
	"github.com/stagecrew/crewdesk/pkg/policy"
	"github.com/stagecrew/crewdesk/pkg/stores"
	"github.com/stagecrew/crewdesk/pkg/telemetry"
)

// app holds what a command needs after configuration is loaded.
type app struct {
	cfg   *config.AppConfig
	tel   *telemetry.Telemetry
	log   *telemetry.Logger
	store *stores.SQLiteStore
	out   io.Writer
}

func openApp(ctx context.Context, out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(telemetry.FromAppConfig(cfg, buildVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:   cfg,
		tel:   tel,
		log:   tel.Logger.NewComponentLogger("cli"),
		store: store,
		out:   out,
	}, nil
}

func openStore(ctx context.Context, cfg *config.AppConfig) (*stores.SQLiteStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.DatabasePath()})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.store.Close(), a.tel.Shutdown(ctx))
}

// withApp opens the app, wraps fn in an instrumented operation named after
// the command, and closes everything afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx := a.tel.WithContext(cmd.Context())
	op := telemetry.StartOperation(ctx, "command."+cmd.CommandPath(),
		telemetry.AttrCommand.String(cmd.CommandPath()))

	err = fn(op.Ctx, a)
	op.End(err)

	if cerr := a.Close(context.WithoutCancel(cmd.Context())); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *app) rules(ctx context.Context) (engine.Rules, error) {
	return config.LoadRules(ctx, a.cfg.RulesPath)
}

// newEngine builds the assignment engine with the override policy checker.
func (a *app) newEngine(ctx context.Context) (*engine.Engine, error) {
	rules, err := a.rules(ctx)
	if err != nil {
		return nil, err
	}

	checker, err := newPolicyEngine(ctx, a.tel.Logger, a.cfg.PoliciesDir)
	if err != nil {
		return nil, err
	}

	return engine.NewEngine(a.store, rules,
		engine.WithLogger(a.tel.Logger.NewComponentLogger("engine").Zerolog()),
		engine.WithTracer(a.tel.Tracer.Tracer()),
		engine.WithRecorder(a.tel.Metrics),
		engine.WithOverrideChecker(checker),
	)
}

func newPolicyEngine(ctx context.Context, logger *telemetry.Logger, dir string) (*policy.Engine, error) {
	pe, err := policy.NewEngine(logger.NewComponentLogger("policy").Zerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	if dir == "" {
		return pe, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return pe, nil
	}
	if err := pe.LoadPolicies(ctx, []string{dir}); err != nil {
		return nil, err
	}
	return pe, nil
}

// resolveCrew accepts a crew id or an exact name.
func (a *app) resolveCrew(ctx context.Context, ref string) (*engine.CrewMember, error) {
	var (
		crew *engine.CrewMember
		err  error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		crew, err = a.store.GetCrew(ctx, id)
	} else {
		crew, err = a.store.GetCrewByName(ctx, ref)
	}
	if engine.IsNotFound(err) {
		return nil, engine.NewNotFoundError(fmt.Sprintf("crew %q", ref), err)
	}
	if err != nil {
		return nil, engine.NewPersistenceError("failed to look up crew", err)
	}
	return crew, nil
}

func (a *app) crewLookup(ctx context.Context) func(string) (int64, error) {
	return func(name string) (int64, error) {
		crew, err := a.store.GetCrewByName(ctx, name)
		if err != nil {
			return 0, err
		}
		return crew.ID, nil
	}
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, engine.NewValidationError(fmt.Sprintf("invalid %s id %q", what, s), err)
	}
	return id, nil
}
