// Package main is the entry point for the roulette server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"roulette-engine/internal/config"
	"roulette-engine/internal/game"
	"roulette-engine/internal/game/roulette"
	"roulette-engine/internal/handler"
	"roulette-engine/internal/pkg/db"
	"roulette-engine/internal/repository"
	"roulette-engine/internal/service"
	"roulette-engine/internal/transport/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(&cfg.Log)
	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server stopped gracefully")
}

func setupLogger(cfg *config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// stores groups the persistence backends the services run on.
type stores struct {
	users  service.UserStore
	rounds service.RoundStore
	top    service.TopUserSource
	daily  service.DailyRankSource
	arch   service.RoundArchive
	txs    service.TransactionSource
	pool   *db.Pool
}

func openStores(ctx context.Context, cfg *config.DatabaseConfig) (*stores, error) {
	if !cfg.Enabled {
		log.Warn().Msg("Database disabled, balances are kept in memory")
		mem := service.NewMemoryStore()
		return &stores{users: mem, rounds: mem, top: mem, daily: mem, arch: mem, txs: mem}, nil
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, pool.Pool); err != nil {
		pool.Close()
		return nil, err
	}

	userRepo := repository.NewUserRepository(pool.Pool)
	roundRepo := repository.NewRoundRepository(pool.Pool)
	txRepo := repository.NewTransactionRepository(pool.Pool)
	return &stores{
		users:  userRepo,
		rounds: roundRepo,
		top:    userRepo,
		daily:  txRepo,
		arch:   roundRepo,
		txs:    txRepo,
		pool:   pool,
	}, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	loc, err := cfg.Server.Location()
	if err != nil {
		return err
	}

	wallet := service.NewWalletService(st.users, st.rounds, cfg.Table.InitialBalance, cfg.Table.MaxBalance, cfg.Table.PersistTimeout)
	ranking := service.NewRankingService(st.top, st.daily, loc)
	history := service.NewHistoryService(st.arch, st.txs)
	hub := ws.NewHub(ctx, &cfg.Server)

	tableCfg := roulette.Config{
		BettingDuration:      cfg.Table.BettingDuration,
		SpinDuration:         cfg.Table.SpinDuration,
		PayoutDuration:       cfg.Table.PayoutDuration,
		MaxSettleAttempts:    cfg.Table.MaxSettleAttempts,
		PersistTimeout:       cfg.Table.PersistTimeout,
		ColumnDozenExclusive: cfg.Table.ColumnDozenExclusive,
		HistorySize:          cfg.Table.HistorySize,
		MaxStake:             cfg.Table.MaxStake,
	}
	registry := game.NewRegistry(ctx, func(roomID string, onRelease func(roomID, playerID string)) game.Table {
		return roulette.NewTable(roomID, tableCfg,
			roulette.WithDrawer(roulette.CryptoDrawer{}),
			roulette.WithSettler(wallet),
			roulette.WithNotifier(hub),
			roulette.WithReleaseHook(onRelease),
		)
	}, cfg.Table.MaxPlayers)

	dispatcher := handler.NewDispatcher(registry, wallet, ranking, history, cfg.Server.DefaultRoom, cfg.Server.HandlerTimeout)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler(dispatcher))
	mux.HandleFunc("/healthz", healthHandler(registry, hub, st.pool))

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("address", srv.Addr).Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		hub.Close()
		err := srv.Shutdown(shutdownCtx)
		if cerr := registry.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})
	return g.Wait()
}

type healthResponse struct {
	Status      string          `json:"status"`
	Rooms       int             `json:"rooms"`
	Tables      []game.RoomInfo `json:"tables,omitempty"`
	Connections int             `json:"connections"`
	Database    *db.PoolStatus  `json:"database,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func healthHandler(registry *game.Registry, hub *ws.Hub, pool *db.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Rooms: registry.Count(), Tables: registry.Rooms(), Connections: hub.Count()}
		code := http.StatusOK
		if pool != nil {
			status := pool.Status()
			resp.Database = &status
			if err := pool.HealthCheck(r.Context(), 2*time.Second); err != nil {
				resp.Status, resp.Error = "degraded", err.Error()
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
