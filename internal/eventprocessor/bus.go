// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
)

// Bus owns the queue connections shared by the notification producer and
// consumer: either NATS JetStream or an in-process Go channel.
type Bus struct {
	publisher *Publisher
	wmLogger  watermill.LoggerAdapter

	// NATS mode
	cfg    config.NATSConfig
	url    string
	server *EmbeddedServer
	conn   *natsgo.Conn
	stream *StreamInitializer
	subs   []*Subscriber

	// in-process mode
	channel *gochannel.GoChannel
}

// OpenBus connects the queue described by cfg. When NATS is disabled the
// bus is an in-process channel that loses messages on restart.
func OpenBus(ctx context.Context, cfg config.NATSConfig) (*Bus, error) {
	if !cfg.Enabled {
		logging.Warn().Msg("NATS disabled, notifications use an in-process queue")
		return NewInProcessBus(), nil
	}

	b := &Bus{cfg: cfg, wmLogger: logging.NewWatermillLogger()}

	b.url = cfg.URL
	if cfg.EmbeddedServer {
		serverCfg := ServerConfigFrom(cfg)
		srv, err := NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, err
		}
		b.server = srv
		b.url = srv.ClientURL()
		logging.Info().Str("url", b.url).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", b.url).Msg("Using external NATS server")
	}

	nc, err := natsgo.Connect(b.url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		_ = b.Close(ctx)
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	b.conn = nc

	js, err := jetstream.New(nc)
	if err != nil {
		_ = b.Close(ctx)
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := NotificationStreamConfig(cfg)
	b.stream, err = NewStreamInitializer(js, &streamCfg)
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	stream, err := b.stream.EnsureStream(ctx)
	if err != nil {
		_ = b.Close(ctx)
		return nil, fmt.Errorf("ensure stream exists: %w", err)
	}
	info := stream.CachedInfo()
	logging.Info().
		Str("name", info.Config.Name).
		Strs("subjects", info.Config.Subjects).
		Dur("max_age", info.Config.MaxAge).
		Msg("JetStream stream ready")

	pub, err := NewPublisher(DefaultPublisherConfig(b.url), b.wmLogger)
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	pub.SetCircuitBreaker(NewCircuitBreaker(DefaultCircuitBreakerConfig("nats-publisher")))
	b.publisher = pub

	return b, nil
}

// NewInProcessBus creates a bus backed by a Watermill Go channel.
func NewInProcessBus() *Bus {
	logger := logging.NewWatermillLogger()
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	pub, _ := WrapPublisher(ch, logger)
	return &Bus{publisher: pub, channel: ch, wmLogger: logger}
}

// Publisher returns the shared publisher.
func (b *Bus) Publisher() *Publisher {
	return b.publisher
}

// Subscriber returns a subscriber for the named durable consumer.
func (b *Bus) Subscriber(consumer string) (*Subscriber, error) {
	if b.channel != nil {
		return &Subscriber{subscriber: b.channel, logger: b.wmLogger, shared: true}, nil
	}
	cfg := SubscriberConfigFrom(b.cfg, b.url, consumer)
	sub, err := NewSubscriber(&cfg, b.wmLogger)
	if err != nil {
		return nil, err
	}
	b.subs = append(b.subs, sub)
	return sub, nil
}

// Check reports whether the queue is reachable.
func (b *Bus) Check(ctx context.Context) error {
	if b.channel != nil {
		return nil
	}
	if b.conn == nil || !b.conn.IsConnected() {
		return errors.New("NATS not connected")
	}
	if !b.stream.IsHealthy(ctx) {
		return fmt.Errorf("stream %s unavailable", b.stream.Config().Name)
	}
	return nil
}

// Close releases every connection in reverse order of creation.
func (b *Bus) Close(ctx context.Context) error {
	var errs []error
	for _, s := range b.subs {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown NATS server: %w", err))
		}
	}
	return errors.Join(errs...)
}
