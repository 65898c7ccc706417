// Package server assembles the API server: configuration, logging, the
// SQLite database, the source registry and seeder, the script runtime,
// the download manager and websocket hub, and the gin router with its
// middleware stack. Run serves until its context is cancelled and then
// shuts everything down in reverse order.
package server
