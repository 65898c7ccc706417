// Package ws pushes download progress to browser clients.
//
// Clients connect to /ws/download and receive JSON envelopes:
//
//	{"type":"download_progress","downloadId":"...","data":{"status":"downloading","progress":42.5}}
//
// A client may send {"type":"ping"} and receives {"type":"pong"}. Each
// client has a bounded send buffer; messages to a lagging client are
// dropped rather than blocking the download workers.
//
// Example Usage:
//
//	hub := ws.NewHandler(logger, metrics)
//	router.GET("/ws/download", hub.HandleConnection)
//	manager := download.NewManager(store, cfg, logger, download.WithBroadcaster(hub))
package ws
