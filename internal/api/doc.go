// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package api exposes the HTTP surface of the relay on a chi router.

Routes:

	GET   /metrics                                  Prometheus exposition
	GET   /chat                                     WebSocket gateway (configurable path)
	GET   /api/v1/health/live                       liveness
	GET   /api/v1/health/ready                      readiness (database, queue)
	GET   /api/v1/chats/{chatID}/messages           history, ?cursor=<id>&limit=<n>
	GET   /api/v1/notifications                     ?before=<RFC 3339>&limit=<n>
	POST  /api/v1/notifications/{id}/read
	GET   /api/v1/notifications/preferences
	PATCH /api/v1/notifications/preferences

Every JSON response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "FORBIDDEN", "message": "..."}, "meta": {...}}

Error codes come from the apperrors taxonomy, so a store error renders the
same here as in a socket error event. User routes sit behind bearer token
authentication and per-IP rate limiting.
*/
package api
