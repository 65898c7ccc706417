// Package network is the outbound HTTP half of the capability bridge.
//
// Scripts never see Go errors: Do always yields a Response whose Error field
// carries transport failures, breaker rejections and timeouts. Requests get a
// browser User-Agent unless the script sets one, are bounded by a per-call
// timeout independent of the session deadline, and are isolated per remote
// host by circuit breakers so a dead platform fails fast.
//
// Bodies are transcoded to UTF-8 (declared charset first, chardet second)
// and decoded as JSON with sonic when they look like JSON.
package network
