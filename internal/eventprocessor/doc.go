// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package eventprocessor provides the notification queue: Watermill
// publishers and subscribers over NATS JetStream, or over an in-process Go
// channel when NATS is disabled.
//
// # Topology
//
//	┌──────────────┐    notification.created         ┌──────────────┐
//	│   Producer   │───▶ notification.password_reset ─▶│   Consumer   │
//	│ (gateway,    │        (stream NOTIFICATIONS)    │ (persist,    │
//	│  REST hooks) │                                   │  email)      │
//	└──────────────┘                                   └──────┬───────┘
//	                                                          │ on failure
//	                                                          ▼
//	                                               notification.dead_letter
//
// A single stream captures notification.>. Every topic gets its own durable
// consumer, so acknowledgements on one topic never affect another.
//
// # Deployment modes
//
//   - Embedded: a NATS server with JetStream runs inside the process
//     (NATS_EMBEDDED=true, the default).
//   - External: the bus connects to NATS_URL.
//   - In-process: NATS_ENABLED=false. Messages live in a Go channel and are
//     lost on restart. Intended for development and tests.
//
// # Resilience
//
// Publishing goes through a gobreaker circuit breaker so a stalled NATS
// connection fails fast instead of blocking the gateway's read loop.
// Breaker state is exported as parley_circuit_breaker_state.
//
// Bus.Check backs the "queue" component of /api/v1/health/ready.
package eventprocessor
