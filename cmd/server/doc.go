// Package main is the entry point for the MusicHub API server.
//
// The server stores user-supplied music source scripts, runs them in
// isolated sandboxes and answers search, playback URL, lyric, cover and
// ranking requests by trying each enabled source in priority order. It
// also queues track downloads and pushes their progress over a websocket.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 3000 -db ./data/database.sqlite
//
//	# Development mode (colored logs, debug level), importing bundled scripts
//	./server -dev -seed ./sources
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
