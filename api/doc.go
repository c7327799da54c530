// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package api documents the BrowserFlow HTTP and WebSocket surface.
//
// # API Overview
//
// BrowserFlow exposes a small REST API for session and recording management
// plus one WebSocket per remote browser session:
//   - Session lifecycle: create, inspect, list, switch off
//   - Loading a saved recording into a live session for editing
//   - Recording management and unattended runs
//   - Health, readiness and version probes
//
// Responses use one envelope:
//
//	{"success": true, "data": {...}, "timestamp": "..."}
//	{"success": false, "error": {"code": "SESSION_NOT_FOUND", "message": "...", "severity": "rejected"}}
//
// # Routes
//
//	POST   /api/v1/sessions                          create a session (optional {"url": "..."})
//	GET    /api/v1/sessions                          list session ids
//	GET    /api/v1/sessions/{id}                     session snapshot
//	DELETE /api/v1/sessions/{id}                     switch a session off
//	POST   /api/v1/sessions/{id}/recording           load {"name": "..."} into the session
//	GET    /ws/{id}                                  WebSocket channel of a session
//	GET    /api/v1/recordings                        list recording metadata
//	GET    /api/v1/recordings/{name}                 read a recording
//	DELETE /api/v1/recordings/{name}                 delete a recording
//	GET    /api/v1/recordings/{name}/runs            list runs of a recording
//	POST   /api/v1/recordings/{name}/runs            run a recording to completion
//	GET    /api/v1/recordings/{name}/runs/{runId}    read one run
//	GET    /health /healthz /ready /readyz /version  probes
//
// # WebSocket
//
// Every message in both directions is {"event": name, "data": payload}.
// The event vocabulary lives in package transport; unknown names are
// rejected at the decode boundary.
//
// # Metrics
//
// Prometheus metrics are served on the separate metrics port at /metrics.
package api
