/*
Package resolver turns one operation against many unreliable source scripts
into one answer.

For each call the enabled sources are read once, in priority order. Every
source gets a fresh sandbox session; the operation is dispatched, and the
result is checked against the operation's success predicate:

	Search, ranking detail   non-empty item list
	Playable URL             non-empty url
	Lyric, cover             any non-null value

The first accepted result wins and later sources are never consulted. Per
source failures are logged and folded into an AggregateError only when every
source has been tried. With no enabled sources each operation returns an
empty result carrying NoSourcesMessage instead of an error.

Search follows the configured Policy: fallback (the same first-success rule),
first (top-priority source only) or aggregate (concurrent fan-out keeping
every non-empty result in priority order).
*/
package resolver
