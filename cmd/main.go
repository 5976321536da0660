package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"bloodbank/internal/audit"
	"bloodbank/internal/catalog"
	"bloodbank/internal/config"
	"bloodbank/internal/db"
	"bloodbank/internal/fees"
	"bloodbank/internal/health"
	"bloodbank/internal/idempotency"
	"bloodbank/internal/kafka"
	"bloodbank/internal/logging"
	taskprocessor "bloodbank/internal/processor"
	"bloodbank/internal/ranking"
	"bloodbank/internal/receipt"
	"bloodbank/internal/repository"
	"bloodbank/internal/server"
	"bloodbank/internal/service"
)

type stores struct {
	catalog catalog.Store
	orders  repository.OrderRepository
	tasks   repository.TaskRepository
	db      *sql.DB
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("bloodbank stopped", "err", err)
		os.Exit(1)
	}
	log.Info("bloodbank stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	cached := catalog.NewCachedCatalog(st.catalog, log)
	go cached.Run(ctx, cfg.Catalog.RefreshInterval)

	processors := auditProcessors(cfg, st, log)
	auditCtx, cancelAudit := context.WithCancel(context.Background())
	pool := audit.NewAuditWorkerPool(audit.AuditPoolConfig{
		BatchSize:   cfg.Audit.BatchSize,
		Timeout:     cfg.Audit.Timeout,
		ChannelSize: cfg.Audit.ChannelSize,
	}, log, processors...)
	pool.Start(auditCtx, cfg.Audit.Workers)
	defer pool.Shutdown(cancelAudit)

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewSaramaProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		tp := taskprocessor.NewTaskProcessor(st.tasks, producer, taskprocessor.Config{
			Topic:        cfg.Kafka.Topic,
			PollInterval: cfg.Outbox.PollInterval,
			Limit:        cfg.Outbox.Batch,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
			RetryDelay:   cfg.Outbox.RetryDelay,
		}, log)
		go tp.Start(ctx)
	} else {
		log.Warn("kafka brokers not configured, order events are not published")
	}

	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.Redis.TTL)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		idem = idempotency.NewRedisStore(rdb, cfg.Redis.TTL)
	}

	registry := fees.NewRegistry()
	deps := service.Deps{
		Orders: st.orders,
		Fees:   registry,
		Audit:  pool,
		Log:    log,
	}
	if cfg.Purchase.ReserveStock {
		deps.Reserver = cached
	}
	purchases := service.NewPurchaseService(deps)

	var ping func(ctx context.Context) error
	if st.db != nil {
		ping = st.db.PingContext
	}
	checker := health.NewChecker(ping, log)
	go checker.Watch(ctx, 5*time.Second)
	go func() {
		if err := health.Serve(ctx, cfg.GRPCAddr(), checker, log); err != nil {
			log.Error("grpc health", "err", err)
		}
	}()

	srv := server.NewServer(
		ranking.NewEngine(cached),
		purchases,
		receipt.NewGenerator(registry),
		idem,
		ping,
		server.Config{Addr: cfg.Addr(), Username: cfg.Admin.Username, Password: cfg.Admin.Password},
		log,
	)
	return srv.Run(ctx)
}

// openStores picks postgres when a DSN is configured and in-memory stores otherwise.
func openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	var seed *catalog.MemoryCatalog
	if cfg.Catalog.Seed {
		var err error
		if seed, err = catalog.NewSeedCatalog(); err != nil {
			return stores{}, err
		}
	}

	if cfg.DB.DSN == "" {
		if seed == nil {
			seed = catalog.NewMemoryCatalog()
		}
		return stores{
			catalog: seed,
			orders:  repository.NewMemoryOrderRepository(),
			tasks:   repository.NewMemoryTaskRepository(),
		}, nil
	}

	database, err := db.NewDB(ctx, cfg.DB.DSN, cfg.DB.Migrations)
	if err != nil {
		return stores{}, err
	}
	return stores{
		catalog: catalog.NewUnionCatalog(seed, catalog.NewPostgresCatalog(database)),
		orders:  repository.NewOrderRepository(database),
		tasks:   repository.NewPostgresTaskRepository(database),
		db:      database,
	}, nil
}

// auditProcessors fans audit records out to the log, the audit table when a
// database is configured, and the outbox only when something publishes it.
func auditProcessors(cfg *config.Config, st stores, log *slog.Logger) []audit.AuditLogProcessor {
	processors := []audit.AuditLogProcessor{
		&audit.LogProcessor{Log: log, Filter: cfg.Audit.Filter},
	}
	if len(cfg.Kafka.Brokers) > 0 {
		processors = append(processors, audit.NewOutboxProcessor(st.tasks))
	}
	if st.db != nil {
		processors = append(processors, audit.NewDBProcessor(st.db))
	}
	return processors
}
