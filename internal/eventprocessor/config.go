// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package eventprocessor

import (
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/parley/internal/config"
)

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// ServerConfigFrom derives the embedded server listen address from the NATS URL.
func ServerConfigFrom(cfg config.NATSConfig) ServerConfig {
	sc := ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          cfg.StoreDir,
		JetStreamMaxMem:   cfg.MaxMemory,
		JetStreamMaxStore: cfg.MaxStore,
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return sc
	}
	if h := u.Hostname(); h != "" {
		sc.Host = h
	}
	if p, err := strconv.Atoi(u.Port()); err == nil && p > 0 {
		sc.Port = p
	}
	return sc
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024,
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
	// StreamName binds the subscriber to an existing stream instead of
	// auto-provisioning one named after the topic.
	StreamName string
}

// SubscriberConfigFrom builds subscriber settings for one durable consumer.
// Each topic gets its own durable so acknowledgements do not interfere.
func SubscriberConfigFrom(cfg config.NATSConfig, url, consumer string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      cfg.DurableName + "-" + consumer,
		QueueGroup:       cfg.QueueGroup + "-" + consumer,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWait,
		MaxDeliver:       cfg.MaxDeliver,
		MaxAckPending:    1000,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		StreamName:       cfg.StreamName,
	}
}

// StreamConfig defines the notification stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// NotificationStreamConfig returns the stream carrying every notification.* subject.
func NotificationStreamConfig(cfg config.NATSConfig) StreamConfig {
	days := cfg.RetentionDays
	if days <= 0 {
		days = 7
	}
	return StreamConfig{
		Name:            cfg.StreamName,
		Subjects:        []string{"notification.>"},
		MaxAge:          time.Duration(days) * 24 * time.Hour,
		MaxBytes:        cfg.MaxStore,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns the publish breaker defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}
