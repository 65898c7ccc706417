// Package middleware provides the gin middleware stack of the API server.
//
//   - CORS: cross-origin access for the web player (gin-contrib/cors)
//   - RateLimit: per-IP token buckets with idle eviction (x/time/rate)
//   - GlobalRateLimit: one bucket shared by every client
//   - RequestLogger: request ids and one zap line per request
//
// Example Usage:
//
//	router.Use(middleware.RequestLogger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
