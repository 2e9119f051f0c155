package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/obviouslynottop1/snedbot/internal/database/migrations"
	"github.com/obviouslynottop1/snedbot/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/extra/bunotel"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// sonicJSON routes bun's jsonb encoding through sonic.
type sonicJSON struct{}

func (sonicJSON) Marshal(v any) ([]byte, error) { return sonic.Marshal(v) }
func (sonicJSON) Unmarshal(data []byte, v any) error { return sonic.Unmarshal(data, v) }

func (sonicJSON) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicJSON) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

// Client is an open database with its model repository.
type Client interface {
	Model() *Repository
	Close() error
	// DB exposes the bun handle for migrations.
	DB() *bun.DB
}

type pgClient struct {
	db     *bun.DB
	repo   *Repository
	logger *zap.Logger
}

// NewConnection opens the Postgres pool described by cfg and checks that
// the server answers. With autoMigrate set, pending migrations are applied
// before the client is returned.
func NewConnection(
	ctx context.Context, cfg *config.PostgreSQL, logger *zap.Logger, autoMigrate bool,
) (Client, error) {
	db := bun.NewDB(openPool(cfg), pgdialect.New())
	db.AddQueryHook(NewHook(logger))
	db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(cfg.DBName)))

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if autoMigrate {
		if err := applyMigrations(ctx, db, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info("Connected to database",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName))

	return &pgClient{
		db:     db,
		repo:   NewRepository(db, logger),
		logger: logger,
	}, nil
}

// openPool creates the sql.DB pool. Connections are opened lazily.
func openPool(cfg *config.PostgreSQL) *sql.DB {
	pool := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("snedbot"),
	))

	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.MaxIdleTime) * time.Minute)

	bunjson.SetProvider(sonicJSON{})

	return pool
}

// applyMigrations brings the schema up to date.
func applyMigrations(ctx context.Context, db *bun.DB, logger *zap.Logger) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if !group.IsZero() {
		logger.Info("Applied pending migrations", zap.String("group", group.String()))
	}

	return nil
}

func (c *pgClient) Model() *Repository {
	return c.repo
}

func (c *pgClient) DB() *bun.DB {
	return c.db
}

// Close closes every pooled connection.
func (c *pgClient) Close() error {
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
		return err
	}

	c.logger.Info("Closed database connection")

	return nil
}
