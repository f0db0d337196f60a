// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/parley/internal/api"
	"github.com/tomtom215/parley/internal/asset"
	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/chat"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/database"
	"github.com/tomtom215/parley/internal/directory"
	"github.com/tomtom215/parley/internal/eventprocessor"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/mail"
	"github.com/tomtom215/parley/internal/notification"
	"github.com/tomtom215/parley/internal/presence"
	"github.com/tomtom215/parley/internal/websocket"
)

// Durable consumer names on the notification stream.
const (
	consumerCreated       = "notification-created"
	consumerPasswordReset = "notification-password-reset"
)

// app holds the wired components and the resources to release on exit.
type app struct {
	server    *http.Server
	messaging []suture.Service

	pool          *pgxpool.Pool
	bus           *eventprocessor.Bus
	closeRegistry func() error
}

// buildApp connects every backing service and wires the components.
// On error, whatever was opened is released.
func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.pool, err = database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err = database.ApplySchema(ctx, a.pool); err != nil {
		return nil, err
	}
	logging.Info().Msg("Database ready")

	var registry presence.Registry
	registry, a.closeRegistry, err = presence.New(ctx, cfg.Presence, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("presence registry: %w", err)
	}
	logging.Info().Str("backend", cfg.Presence.Backend).Msg("Socket registry ready")

	a.bus, err = eventprocessor.OpenBus(ctx, cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("notification queue: %w", err)
	}

	users := directory.NewCached(directory.NewPostgresDirectory(a.pool), cfg.Directory.CacheSize, cfg.Directory.CacheTTL)
	jwtm, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return nil, err
	}
	authenticator := auth.NewAuthenticator(jwtm, users)

	storage, err := asset.NewFileStorage(cfg.Assets)
	if err != nil {
		return nil, err
	}
	cleaner := asset.NewCleaner(storage, cfg.Assets.CleanupQueueSize)
	chats := chat.NewService(chat.NewPostgresRepository(a.pool), storage, cleaner, cfg.Chat)

	notifications := notification.NewPostgresStore(a.pool)
	prefs := notification.NewPreferenceService(notifications)
	producer := notification.NewProducer(a.bus.Publisher(), prefs)

	consumer, err := newConsumer(cfg, a.bus, notifications, users)
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub()
	gateway := websocket.NewGateway(hub, registry, chats, producer, cfg.Gateway)
	upgrade := websocket.NewHandler(gateway, authenticator, cfg.Security.CORSOrigins, api.WriteAuthError)

	handler := api.NewHandler(chats, notifications, prefs, map[string]api.CheckFunc{
		"database": a.pool.Ping,
		"queue":    a.bus.Check,
	})
	router := api.NewRouter(
		handler,
		authenticator.Middleware(api.WriteAuthError),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security)),
		upgrade,
		cfg.Gateway.Path,
	)

	a.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	a.messaging = []suture.Service{hub, consumer, cleaner}
	return a, nil
}

// newConsumer wires the notification consumer. Email is skipped when no
// SMTP relay is configured.
func newConsumer(cfg *config.Config, bus *eventprocessor.Bus, store *notification.PostgresStore, users directory.Directory) (*notification.Consumer, error) {
	created, err := bus.Subscriber(consumerCreated)
	if err != nil {
		return nil, err
	}
	reset, err := bus.Subscriber(consumerPasswordReset)
	if err != nil {
		return nil, err
	}
	templates, err := notification.NewTemplateEngine()
	if err != nil {
		return nil, err
	}

	var mailer mail.Sender
	if cfg.SMTP.Enabled() {
		mailer = mail.NewSMTPSender(cfg.SMTP)
		logging.Info().Str("host", cfg.SMTP.Host).Int("port", cfg.SMTP.Port).Msg("Notification email enabled")
	} else {
		logging.Warn().Msg("SMTP not configured, notification email disabled and password resets will be dead-lettered")
	}

	return notification.NewConsumer(notification.ConsumerDeps{
		Created:       created,
		PasswordReset: reset,
		DeadLetter:    bus.Publisher(),
		Store:         store,
		Directory:     users,
		Mailer:        mailer,
		Templates:     templates,
	}, notification.ConsumerConfig{
		PublicURL:  cfg.Server.PublicURL,
		MaxDeliver: cfg.NATS.MaxDeliver,
	})
}

// close releases backing connections in reverse order of opening.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.bus != nil {
		if err := a.bus.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.closeRegistry != nil {
		if err := a.closeRegistry(); err != nil {
			errs = append(errs, fmt.Errorf("close registry: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		logging.Error().Err(err).Msg("Error releasing resources")
	}
}
