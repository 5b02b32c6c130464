package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"wallet-score/internal/alerting"
	"wallet-score/internal/chain"
	"wallet-score/internal/config"
	"wallet-score/internal/domain"
	"wallet-score/internal/events"
	"wallet-score/internal/fetcher"
	"wallet-score/internal/metrics"
	"wallet-score/internal/scheduler"
	"wallet-score/internal/scoring"
	"wallet-score/internal/server"
	"wallet-score/internal/service"
	"wallet-score/internal/signing"
	"wallet-score/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	metrics.Init()
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

// runtime holds the wired scoring pipeline for one command.
type runtime struct {
	registry *chain.Registry
	store    *storage.Store
	scorer   *service.Scorer
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	if a.Config.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			closer()
			return nil, nil, err
		}
	}
	return store, closer, nil
}

func (a *App) newModel() (*scoring.Model, error) {
	weights, err := scoring.ParseWeights(a.Config.Scoring.Weights)
	if err != nil {
		return nil, err
	}
	return scoring.NewModel(weights)
}

// newPrices returns the DefiLlama oracle, cached in Redis when configured, plus the
// token-balance limiter sharing the same connection.
func (a *App) newPrices(ctx context.Context, rt *runtime) (fetcher.PriceOracle, fetcher.Limiter) {
	cfg := a.Config
	var prices fetcher.PriceOracle = fetcher.NewDefiLlama(fetcher.DefiLlamaOptions{
		BaseURL:   cfg.Pricing.BaseURL,
		Freshness: cfg.Pricing.Freshness,
		Timeout:   cfg.Pricing.RequestTimeout,
	}, a.Logger)

	if cfg.Redis.Addr == "" {
		return prices, nil
	}
	rdb, err := fetcher.NewRedisClient(ctx, fetcher.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("redis unavailable; price cache and shared limiter disabled")
		return prices, nil
	}
	rt.closers = append(rt.closers, func() { _ = rdb.Close() })

	prices = fetcher.NewCachedPriceOracle(prices, rdb, cfg.Redis.KeyPrefix, cfg.Pricing.CacheTTL, a.Logger)
	limiter := fetcher.NewRedisLimiter(rdb, cfg.Redis.KeyPrefix, cfg.Tokens.RateLimit, cfg.Tokens.RateWindow)
	return prices, limiter
}

// newRuntime wires every scoring dependency. persist=false leaves the store and
// event publisher out.
func (a *App) newRuntime(ctx context.Context, persist bool) (*runtime, error) {
	cfg := a.Config
	rt := &runtime{registry: chain.FromConfig(cfg, a.Logger)}

	model, err := a.newModel()
	if err != nil {
		return nil, err
	}

	signer, err := signing.New(signing.Options{
		PrivateKey:    cfg.Signer.PrivateKey,
		DomainName:    cfg.Signer.DomainName,
		DomainVersion: cfg.Signer.DomainVersion,
		Validity:      cfg.Signer.Validity,
	})
	if err != nil {
		return nil, err
	}
	if signer.Address() == (common.Address{}) {
		a.Logger.Warn().Msg("signer.private_key not configured; every score request will fail at signing")
	}

	prices, limiter := a.newPrices(ctx, rt)

	lending := fetcher.NewLending(fetcher.LendingOptions{Timeout: cfg.Lending.RequestTimeout}, a.Logger)
	rt.closers = append(rt.closers, lending.Close)

	tokenBalances := fetcher.NewTokenBalances(fetcher.TokenBalancesOptions{
		Delay:     cfg.Tokens.Delay,
		MaxTokens: cfg.Tokens.MaxTokens,
	}, prices, limiter, a.Logger)
	swapPairs := fetcher.NewSwapPairs(fetcher.SwapPairsOptions{
		DefaultFirst: cfg.Swaps.DefaultFirst,
		MaxFirst:     cfg.Swaps.MaxFirst,
		Timeout:      cfg.Swaps.RequestTimeout,
	}, a.Logger)
	governance := fetcher.NewGovernance(fetcher.GovernanceOptions{
		URL:     cfg.Governance.URL,
		Timeout: cfg.Governance.RequestTimeout,
	}, a.Logger)
	social := fetcher.NewSocial(fetcher.SocialOptions{
		URL:     cfg.Social.URL,
		APIKey:  cfg.Social.APIKey,
		Timeout: cfg.Social.RequestTimeout,
	}, a.Logger)

	deps := service.Dependencies{
		Chains:        rt.registry,
		Prices:        prices,
		TokenBalances: tokenBalances,
		SwapPairs:     swapPairs,
		Lending:       lending,
		Governance:    governance,
		Social:        social,
		Model:         model,
		Signer:        signer,
	}

	risk := cfg.Risk
	if risk.Greysafe.BaseURL != "" {
		deps.Greysafe = fetcher.NewGreysafe(riskOptions(risk.Greysafe, risk.RequestTimeout), a.Logger)
	}
	if risk.Chainalysis.BaseURL != "" {
		deps.Chainalysis = fetcher.NewChainalysis(riskOptions(risk.Chainalysis, risk.RequestTimeout), a.Logger)
	}
	if risk.Hapi.BaseURL != "" {
		deps.Hapi = fetcher.NewHapi(riskOptions(risk.Hapi, risk.RequestTimeout), a.Logger)
	}

	if persist {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if store == nil {
			a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
		} else {
			rt.store = store
			rt.closers = append(rt.closers, closeStore)
			deps.Store = store
		}

		publisher, err := events.NewPublisher(cfg.Queue, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("event broker unavailable; scoring events disabled")
		} else if publisher != nil {
			rt.closers = append(rt.closers, func() { _ = publisher.Close() })
			deps.Events = publisher
		}
	}

	rt.scorer = service.NewScorer(deps, a.Logger)
	return rt, nil
}

func riskOptions(p config.ProviderConfig, timeout time.Duration) fetcher.RiskOptions {
	return fetcher.RiskOptions{BaseURL: p.BaseURL, APIKey: p.APIKey, Timeout: timeout}
}

// Serve runs the HTTP API until SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.newRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	var history server.HistoryReader
	if rt.store != nil {
		history = rt.store
	}

	srv := server.New(server.Options{
		Addr:           a.Config.Server.Addr,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		RequestTimeout: a.Config.Server.RequestTimeout,
	}, rt.scorer, rt.registry, history, a.Logger)

	a.Logger.Info().Strs("chains", rt.registry.Names()).Msg("starting scoring api")
	if err := srv.ListenAndServe(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("scoring api terminated with error")
		return err
	}
	a.Logger.Info().Msg("scoring api stopped")
	return nil
}

// WatchOptions select the optional data fetched for each watched wallet.
type WatchOptions struct {
	Flags domain.Flags
}

// Watch executes the long-running re-scoring loop.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	targets := make([]service.Target, 0, len(a.Config.Watch.Addresses))
	for _, raw := range a.Config.Watch.Addresses {
		t, err := service.ParseTarget(raw)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return errors.New("watch.addresses is empty; nothing to watch")
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		TickTimeout:  a.Config.Scheduler.TickTimeout,
	}, a.Logger)
	if err != nil {
		return err
	}

	rt, err := a.newRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	var history service.RecordReader
	var locker storage.AdvisoryLocker
	if rt.store != nil {
		history = rt.store
		locker = rt.store
	}

	var notifier alerting.Notifier
	if a.Config.Alerting.Enabled {
		notifier = a.newNotifier()
	}

	watcher := service.NewWatcher(service.WatcherOptions{
		Targets:    targets,
		Flags:      opts.Flags,
		AlertDelta: a.Config.Watch.AlertDelta,
		Channels:   a.Config.Alerting.Channels,
		LockKey:    a.Config.Scheduler.AdvisoryLockKey,
	}, sched, rt.scorer, rt.registry, history, notifier, locker, a.Logger)

	a.Logger.Info().Int("targets", len(targets)).Msg("starting watch loop")
	err = watcher.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}
