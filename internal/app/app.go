// Package app wires the narrator subsystems into a running application.
//
// New builds everything from a validated config: backend profiles, the
// persona registry with its narration sessions, the optional state and usage
// stores, the game feed, the output sinks and the health endpoints. Run serves
// HTTP and drives persona turns until the context ends. Reload applies a
// changed config without a restart.
//
// For testing, inject doubles with the With* options. When an option is not
// provided, New creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/narrator/internal/backend"
	"github.com/MrWong99/narrator/internal/config"
	"github.com/MrWong99/narrator/internal/feed"
	"github.com/MrWong99/narrator/internal/health"
	"github.com/MrWong99/narrator/internal/narration"
	"github.com/MrWong99/narrator/internal/observation"
	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/internal/persona"
	"github.com/MrWong99/narrator/internal/persona/redisstore"
	"github.com/MrWong99/narrator/internal/sink"
	"github.com/MrWong99/narrator/internal/sink/discord"
	"github.com/MrWong99/narrator/internal/usage"
	"github.com/MrWong99/narrator/internal/usage/postgres"
)

// tickInterval is how often the turn loop looks for due personas with
// pending observations that the debouncer did not trigger.
const tickInterval = time.Second

// App owns all subsystem lifetimes.
type App struct {
	mu  sync.Mutex
	cfg *config.Config

	profiles   *backend.Set
	registry   *persona.Registry
	keeper     *feed.RecordKeeper
	feed       *feed.Server
	controller *narration.Controller
	state      *persona.GuardedStore
	health     *health.Handler
	metrics    *observe.Metrics
	debouncer  *observation.Debouncer
	sinks      sink.Multi

	stateStore narration.StateStore
	usageStore usage.Store
	flusher    *usage.Flusher
	dashboard  *discord.Dashboard
	watcher    *config.Watcher
	logLevel   *slog.LevelVar

	trigger   chan struct{}
	startedAt time.Time
	now       func() time.Time

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStateStore injects the persona state store instead of dialling Redis.
func WithStateStore(s narration.StateStore) Option {
	return func(a *App) { a.stateStore = s }
}

// WithUsageStore injects the usage store instead of connecting to Postgres.
func WithUsageStore(s usage.Store) Option {
	return func(a *App) { a.usageStore = s }
}

// WithSinks replaces the configured sinks.
func WithSinks(sinks ...sink.Sink) Option {
	return func(a *App) { a.sinks = sinks }
}

// WithMetrics sets the metrics recorder. Default: observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets Reload change the level of the process logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithWatcher runs w inside Run. The watcher's change callback should call
// [App.Reload].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// New creates an App. profiles is usually built with [BuildProfiles].
func New(ctx context.Context, cfg *config.Config, profiles *backend.Set, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		profiles:  profiles,
		trigger:   make(chan struct{}, 1),
		startedAt: time.Now(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStores(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	a.keeper = feed.NewRecordKeeper(reportsOf(cfg.Reports))
	a.registry = persona.NewRegistry(profiles,
		persona.WithBuffer(cfg.Narration.BufferSize, cfg.Narration.BufferMaxAge),
		persona.WithResetHook(a.keeper.Clear),
	)

	assembler := narration.NewAssembler(a.registry,
		narration.WithPlayerName(cfg.Narration.PlayerName),
		narration.WithGame(cfg.Narration.Game),
		narration.WithLanguage(cfg.Narration.Language),
	)
	controller, err := narration.NewController(narration.Config{
		Assembler:   assembler,
		Snapshots:   a.keeper,
		Registry:    a.registry,
		Store:       a.state,
		Metrics:     a.metrics,
		MaxRetries:  cfg.Narration.MaxRetries,
		Temperature: cfg.Narration.Temperature,
		RetryDelay:  cfg.Narration.RetryDelay,
		CallTimeout: activeTimeout(cfg),
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.controller = controller

	for _, pc := range cfg.Personas {
		if err := a.addPersona(ctx, pc); err != nil {
			a.close()
			return nil, err
		}
	}

	if err := a.initSinks(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init sinks: %w", err)
	}

	a.debouncer = observation.NewDebouncer(cfg.Narration.Debounce, a.Kick)
	a.feed = feed.NewServer(a.keeper, a.Observe,
		feed.WithMetrics(a.metrics),
		feed.WithOriginPatterns(cfg.Feed.OriginPatterns...),
		feed.WithPingInterval(30*time.Second),
	)
	a.initHealth()

	slog.Info("app: initialised",
		"personas", len(cfg.Personas),
		"backends", len(cfg.Backends),
		"sinks", len(a.sinks),
	)
	return a, nil
}

// initStores connects the optional persistence layers.
func (a *App) initStores(ctx context.Context) error {
	st := a.cfg.Storage
	if a.stateStore == nil && st.RedisAddr != "" {
		rs, err := redisstore.Dial(ctx, st.RedisAddr, st.RedisPassword, st.RedisDB)
		if err != nil {
			return err
		}
		a.stateStore = rs
		a.closers = append(a.closers, rs.Close)
	}
	a.state = persona.NewGuardedStore(a.stateStore)

	if a.usageStore == nil && st.PostgresDSN != "" {
		ps, err := postgres.NewStore(ctx, st.PostgresDSN)
		if err != nil {
			return err
		}
		a.usageStore = ps
		a.closers = append(a.closers, func() error { ps.Close(); return nil })
	}
	if a.usageStore != nil {
		a.flusher = usage.NewFlusher(a.usageStore, a.profiles, st.UsageFlushInterval)
		if err := a.flusher.Restore(ctx); err != nil {
			slog.Warn("app: could not restore usage counters", "err", err)
		}
	}
	return nil
}

// initSinks builds the configured sinks unless they were injected.
func (a *App) initSinks() error {
	if a.sinks != nil {
		return nil
	}
	if a.cfg.Sinks.Log {
		a.sinks = append(a.sinks, sink.NewLog(nil))
	}
	if d := a.cfg.Sinks.Discord; d != nil {
		ds, err := discord.New(d.Token, d.ChannelID)
		if err != nil {
			return err
		}
		a.sinks = append(a.sinks, ds)
		a.dashboard = discord.NewDashboard(ds.Sender(), ds.ChannelID(), 0, a.Status)
	}
	if len(a.sinks) == 0 {
		slog.Warn("app: no sinks configured; accepted lines are only logged at debug level")
	}
	return nil
}

// initHealth registers the readiness checks.
func (a *App) initHealth() {
	checks := []health.Checker{health.ActiveProfile(a.profiles)}
	if p, ok := a.stateStore.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Optional("redis", p.Ping))
	}
	if p, ok := a.usageStore.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Optional("postgres", p.Ping))
	}
	checks = append(checks, health.Optional("state", func(context.Context) error {
		if a.state.IsDegraded() {
			return errors.New("state store degraded, keeping state in memory")
		}
		return nil
	}))
	a.health = health.New(checks...)
}

// addPersona registers pc and restores its saved state.
func (a *App) addPersona(ctx context.Context, pc config.PersonaConfig) error {
	opts := []narration.SessionOption{
		narration.WithHistoryThreshold(a.cfg.Narration.HistoryThreshold),
	}
	if ip := a.cfg.Narration.InitialPenalty; ip != nil {
		opts = append(opts, narration.WithInitialPenalty(*ip))
	}
	if st, ok, _ := a.state.LoadState(ctx, pc.Name); ok {
		opts = append(opts, narration.WithState(st))
		slog.Info("app: restored persona state", "persona", pc.Name, "history", len(st.History))
	}
	spec := specOf(pc)
	spec.SessionOptions = opts
	if _, err := a.registry.Add(spec); err != nil {
		return fmt.Errorf("app: add persona: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler serving the game feed and the health
// endpoints.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Feed.Path, a.feed)
	a.health.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// Profiles returns the backend profiles.
func (a *App) Profiles() *backend.Set { return a.profiles }

// Registry returns the persona registry.
func (a *App) Registry() *persona.Registry { return a.registry }

// Keeper returns the record keeper holding the latest world state.
func (a *App) Keeper() *feed.RecordKeeper { return a.keeper }

// Observe hands obs to every enabled persona and restarts the debounce
// timer. It is the feed's observation handler.
func (a *App) Observe(_ context.Context, obs narration.Observation) {
	a.registry.Observe(obs)
	a.debouncer.Trigger()
}

// Kick asks the turn loop to run a round now. It never blocks.
func (a *App) Kick() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// Status reports the narrator state for the Discord dashboard.
func (a *App) Status() discord.Status {
	st := discord.Status{StartedAt: a.startedAt}
	if p := a.profiles.Active(); p != nil {
		u := p.Usage()
		st.Profile = p.Name
		st.Model = p.Model
		st.Sent = u.CharactersSent
		st.Received = u.CharactersReceived
	}
	for _, e := range a.registry.All() {
		st.Personas = append(st.Personas, discord.PersonaStatus{
			Name:    e.Name(),
			Enabled: e.Enabled(),
			Penalty: e.Session.Penalty(),
			History: len(e.Session.History()),
		})
	}
	return st
}

// Run serves HTTP on the configured listen address and drives persona turns
// until ctx is done. It returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("app: listening", "addr", srv.Addr, "feed", a.cfg.Feed.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return a.loop(gctx) })
	if a.flusher != nil {
		g.Go(func() error { return a.flusher.Run(gctx) })
	}
	if a.dashboard != nil {
		g.Go(func() error { return a.dashboard.Run(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown stops the debouncer and releases the stores. It is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		if a.debouncer != nil {
			a.debouncer.Stop()
		}
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = err
				return
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// close releases whatever New acquired before failing.
func (a *App) close() {
	for _, c := range a.closers {
		_ = c()
	}
}

// ── Config mapping ───────────────────────────────────────────────────────────

func reportsOf(r config.ReportsConfig) feed.Reports {
	return feed.Reports{
		Research:  r.Research,
		Resources: r.Resources,
		Energy:    r.Energy,
		Rooms:     r.Rooms,
	}
}

func specOf(pc config.PersonaConfig) persona.Spec {
	return persona.Spec{
		Persona: narration.Persona{
			Name:            pc.Name,
			Personality:     pc.Personality,
			Chronicler:      pc.Chronicler,
			PhraseMaxWords:  pc.PhraseMaxWords,
			HistoryMaxWords: pc.HistoryMaxWords,
		},
		Enabled:       pc.IsEnabled(),
		SpeakInterval: pc.SpeakInterval,
	}
}

func activeTimeout(cfg *config.Config) time.Duration {
	if b := cfg.ActiveBackend(); b != nil {
		return b.Timeout
	}
	return 0
}

func levelOf(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
