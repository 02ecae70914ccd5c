// Package api implements the HTTP REST API and WebSocket server for PBSG Core.
//
// This package provides:
//   - REST endpoints for switch group lifecycle, commands, and the
//     transition journal
//   - WebSocket hub for real-time attribute change broadcasts
//   - MQTT command intake so headless clients can drive groups
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between clients (dashboards, automations, wall
// switches) and the group registry. HTTP commands are enqueued on the
// owning group and answered 202 Accepted; the outcome of each command
// surfaces through the transition journal and the WebSocket hub, never
// through the HTTP response. The same command surface is mirrored on
// MQTT via pbsg/core/<group>/command for clients without HTTP access.
//
// # Graceful Degradation
//
// The server operates without MQTT (the broker intake is simply absent)
// and without a persistent journal (the events endpoint returns empty).
// Group commands and WebSocket broadcasts work in both cases.
package api
