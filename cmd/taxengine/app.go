package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pltax/settlement-engine/internal/calculation"
	"github.com/pltax/settlement-engine/internal/catalog"
	"github.com/pltax/settlement-engine/internal/config"
	"github.com/pltax/settlement-engine/internal/ledger"
	"github.com/pltax/settlement-engine/internal/settlement"
)

// runtime holds the backends chosen from the environment.
type runtime struct {
	env     *config.Env
	logger  *slog.Logger
	catalog *catalog.Catalog
	engine  *calculation.CalculationEngine
	store   ledger.Store
	locker  ledger.Locker
	closers []func()
}

func newRuntime(ctx context.Context, env *config.Env, logger *slog.Logger, seedPath string) (*runtime, error) {
	rt := &runtime{env: env, logger: logger}

	var pool *pgxpool.Pool
	if env.PGDSN != "" {
		p, err := pgxpool.New(ctx, env.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pool = p
		rt.closers = append(rt.closers, pool.Close)
	}

	var err error
	switch {
	case seedPath != "":
		rt.catalog, err = catalog.LoadSeedFile(ctx, seedPath)
	case pool != nil:
		rt.catalog, err = catalog.Load(ctx, catalog.NewPostgresSource(pool))
	default:
		rt.catalog, err = catalog.LoadSeed(ctx)
	}
	if err != nil {
		rt.Close()
		return nil, err
	}
	logger.Debug("catalog loaded", slog.String("version", rt.catalog.Version()))

	rt.engine = calculation.NewCalculationEngine(rt.catalog)
	rt.engine.SetLogger(calculation.NewSlogLogger(logger))

	if pool != nil {
		rt.store = ledger.NewPostgresStore(pool)
	} else {
		rt.store = ledger.NewMemoryStore()
	}

	if env.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: env.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
		}
		rt.closers = append(rt.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
		rt.locker = ledger.NewRedisLocker(client, env.LockTTL)
	} else {
		rt.locker = ledger.NewLocalLocker()
	}
	return rt, nil
}

// service builds a settlement service over the runtime's ledgers. Declarations,
// transactions and settlements live for the duration of the run.
func (rt *runtime) service(profiles settlement.ProfileProvider) (*settlement.Service, error) {
	return settlement.NewService(settlement.Dependencies{
		Engine:       rt.engine,
		Losses:       ledger.NewLossLedger(rt.store, rt.catalog, rt.logger),
		Credits:      ledger.NewVatCreditLedger(rt.store, rt.logger),
		Locker:       rt.locker,
		Declarations: settlement.NewMemoryDeclarationStore(),
		Transactions: settlement.NewMemoryTransactionStore(),
		Settlements:  settlement.NewMemorySettlementStore(),
		Profiles:     profiles,
		Logger:       rt.logger,
	}, settlement.Config{
		VatCreditMaxAgeMonths: rt.env.VatCreditMaxAgeMonths,
		BatchWorkers:          rt.env.BatchWorkers,
	})
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
