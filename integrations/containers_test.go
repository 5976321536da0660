//go:build integration

package integrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"bloodbank/internal/db"
)

type env struct {
	pg      *postgres.PostgresContainer
	kafka   *kafka.KafkaContainer
	db      *sql.DB
	brokers []string
}

func setup(ctx context.Context) (*env, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("bloodbank"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	e := &env{pg: pgC}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		e.teardown(context.Background())
		return nil, err
	}
	if e.db, err = db.NewDB(ctx, dsn, true); err != nil {
		e.teardown(context.Background())
		return nil, err
	}

	kafkaC, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("bloodbank-test"),
	)
	if err != nil {
		e.teardown(context.Background())
		return nil, fmt.Errorf("start kafka: %w", err)
	}
	e.kafka = kafkaC
	if e.brokers, err = kafkaC.Brokers(ctx); err != nil {
		e.teardown(context.Background())
		return nil, err
	}
	return e, nil
}

func (e *env) teardown(ctx context.Context) {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.kafka != nil {
		_ = e.kafka.Terminate(ctx)
	}
	if e.pg != nil {
		_ = e.pg.Terminate(ctx)
	}
}
