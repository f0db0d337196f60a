// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package supervisor runs the long-lived parts of the relay under a suture
supervision tree.

	parley (root)
	├── messaging-layer
	│   ├── websocket-hub
	│   ├── notification-consumer
	│   └── asset-cleaner
	└── api-layer
	    └── http-server

Every service implements suture.Service: Serve(ctx) blocks until ctx is
canceled and returns ctx.Err(), or returns an error to be restarted with
backoff. Supervisor events (panics, restarts, backoff) are logged through
sutureslog into the zerolog pipeline.

Usage:

	tree, _ := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(hub)
	tree.AddMessagingService(consumer)
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	err := tree.Serve(ctx)
*/
package supervisor
