// Command chainflow executes a JSON chain definition: shell commands with
// inter-node dependencies, conditionals, loops, and automatic error recovery.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/aristath/chainflow/internal/action"
	"github.com/aristath/chainflow/internal/chain"
	"github.com/aristath/chainflow/internal/config"
	"github.com/aristath/chainflow/internal/diagnose"
	"github.com/aristath/chainflow/internal/events"
	"github.com/aristath/chainflow/internal/persistence"
	"github.com/aristath/chainflow/internal/recovery"
)

// varFlags collects repeatable -var key=value flags.
type varFlags map[string]string

func (v varFlags) String() string {
	pairs := make([]string, 0, len(v))
	for k, val := range v {
		pairs = append(pairs, k+"="+val)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (v varFlags) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	v[key] = value
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	vars := varFlags{}
	chainPath := flag.String("chain", "", "chain definition file (JSON); '-' reads stdin")
	configPath := flag.String("config", "", "config file path (overrides conventional lookup)")
	timeout := flag.Duration("timeout", 0, "overall chain deadline (0 = none)")
	jsonOut := flag.Bool("json", false, "emit the chain result as JSON")
	debug := flag.Bool("debug", false, "enable debug logging")
	continueOnError := flag.Bool("continue-on-error", false, "keep running sequences after a node fails")
	flag.Var(vars, "var", "initial variable as key=value (repeatable)")
	flag.Parse()

	if *chainPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: chainflow -chain <file> [-var key=value]...")
		flag.PrintDefaults()
		return 2
	}

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	// Track spawned subprocesses so a shutdown signal kills the whole tree.
	pm := action.NewProcessManager()
	go func() {
		<-ctx.Done()
		if err := pm.KillAll(); err != nil {
			logger.Warn("killing subprocesses", "error", err)
		}
	}()

	bus := events.NewBus()
	defer bus.Close()

	var executor action.Executor = action.NewProcessExecutor(cfg.Executor.Shell, nil, pm, logger)
	if cfg.Breaker.Enabled {
		executor = action.NewBreakerExecutor(executor, action.BreakerConfig{
			ConsecutiveFailures: cfg.Breaker.MaxFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout.Std(),
		}, logger)
	}
	defer executor.Close()

	var recoverHook chain.RecoverFunc
	if cfg.Recovery.Enabled {
		history, closeHistory, err := newHistory(ctx, cfg.Recovery)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening recovery history: %v\n", err)
			return 1
		}
		defer closeHistory()

		retryCfg := recovery.RetryConfig{
			InitialInterval:     cfg.Recovery.Retry.InitialInterval.Std(),
			MaxInterval:         cfg.Recovery.Retry.MaxInterval.Std(),
			Multiplier:          cfg.Recovery.Retry.Multiplier,
			RandomizationFactor: cfg.Recovery.Retry.RandomizationFactor,
			ReissueTimeout:      cfg.Recovery.Retry.ReissueTimeout.Std(),
		}
		strategies := enabledStrategies(recovery.BuiltinStrategies(retryCfg), cfg.Recovery.Disabled)
		engine := recovery.NewEngine(strategies, recovery.EngineConfig{
			History: history,
			Bus:     bus,
			Logger:  logger,
		})
		recoverHook = recovery.Hook(diagnose.NewClassifier(), engine)
	}

	def, err := readDefinition(*chainPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading chain: %v\n", err)
		return 1
	}

	initial := make(map[string]any, len(def.Variables)+len(vars))
	for k, v := range def.Variables {
		initial[k] = v
	}
	for k, v := range vars {
		initial[k] = v
	}

	ec := chain.NewContext(executor, initial)
	ec.SetContinueOnError(cfg.Executor.ContinueOnError || *continueOnError)

	runner := chain.NewExecutor(chain.Config{
		Logger:               logger,
		Bus:                  bus,
		Recover:              recoverHook,
		Concurrency:          cfg.Executor.Concurrency,
		DefaultActionTimeout: cfg.Executor.ActionTimeout.Std(),
	})

	runCtx := ctx
	if *timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	result := runner.ExecuteChain(runCtx, def.Nodes, ec)

	if *jsonOut {
		if err := chain.EncodeResult(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
			return 1
		}
	} else {
		printResult(os.Stdout, result)
	}

	if !result.Success {
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load("", path)
	}
	return config.LoadDefault()
}

// newHistory returns the configured recovery history: a SQLite store when a
// path is set, the in-memory ring otherwise.
func newHistory(ctx context.Context, cfg config.RecoveryConfig) (recovery.History, func(), error) {
	if cfg.HistoryDB == "" {
		return recovery.NewRingHistory(cfg.HistoryCap), func() {}, nil
	}
	store, err := persistence.NewSQLiteHistory(ctx, cfg.HistoryDB)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func enabledStrategies(all []recovery.Strategy, disabled []string) []recovery.Strategy {
	if len(disabled) == 0 {
		return all
	}
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}
	kept := all[:0]
	for _, s := range all {
		if !skip[s.Name] {
			kept = append(kept, s)
		}
	}
	return kept
}

func readDefinition(path string) (*chain.Definition, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return chain.DecodeDefinition(r)
}

// printResult writes a human-readable per-node breakdown, sorted by node id.
func printResult(w io.Writer, result chain.ChainResult) {
	if result.Error != "" {
		fmt.Fprintf(w, "chain rejected: %s\n", result.Error)
		return
	}

	ids := make([]string, 0, len(result.Results))
	for id := range result.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		outcome := result.Results[id]
		line := fmt.Sprintf("%-20s %s", id, outcome.Status)
		if outcome.Strategy != "" {
			line += fmt.Sprintf(" (recovered via %s)", outcome.Strategy)
		}
		if outcome.Error != "" {
			line += fmt.Sprintf(" -- %s", outcome.Error)
		}
		if outcome.Warning != "" {
			line += fmt.Sprintf(" [warning: %s]", outcome.Warning)
		}
		fmt.Fprintln(w, line)
	}

	if result.Success {
		fmt.Fprintln(w, "chain completed")
	} else {
		fmt.Fprintln(w, "chain failed")
	}
}
