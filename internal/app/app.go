// Package app wires configuration into a ready treasury service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/commonpurse/commonpurse/internal/activity"
	"github.com/commonpurse/commonpurse/internal/activity/discord"
	"github.com/commonpurse/commonpurse/internal/activity/kafka"
	"github.com/commonpurse/commonpurse/internal/activity/redis"
	"github.com/commonpurse/commonpurse/internal/config"
	"github.com/commonpurse/commonpurse/internal/database"
	"github.com/commonpurse/commonpurse/internal/treasury"
	"github.com/commonpurse/commonpurse/internal/treasury/store"
)

type App struct {
	DB       *sql.DB
	Store    *store.Store
	Treasury *treasury.Service

	closers []io.Closer
}

// Open connects to the configured database, applies the schema and builds
// the treasury service with every configured activity sink.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	driver := database.Driver(cfg.DB.Driver)

	db, err := database.New(driver, cfg.DataSource())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := database.Migrate(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	a := &App{DB: db, Store: store.New(db, driver)}

	notifiers := activity.Multi{activity.NewLogger(logger)}

	if len(cfg.Kafka.Brokers) > 0 {
		p := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		notifiers = append(notifiers, p)
		a.closers = append(a.closers, p)
	}

	if cfg.Redis.URL != "" {
		p, err := redis.NewPublisher(cfg.Redis.URL, cfg.Redis.Stream)
		if err != nil {
			a.Close()
			return nil, err
		}

		notifiers = append(notifiers, p)
		a.closers = append(a.closers, p)
	}

	if cfg.Discord.Token != "" && cfg.Discord.ChannelID != "" {
		n, err := discord.New(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			a.Close()
			return nil, err
		}

		notifiers = append(notifiers, n)
	}

	logger.Info("activity sinks configured", "count", len(notifiers))

	a.Treasury = treasury.NewService(a.Store,
		treasury.WithNotifier(notifiers),
		treasury.WithLogger(logger),
	)

	return a, nil
}

func (a *App) Close() error {
	errs := make([]error, 0, len(a.closers)+1)

	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}

	errs = append(errs, a.DB.Close())

	return errors.Join(errs...)
}
