// Package download keeps a persistent queue of track downloads.
//
// Jobs are rows in the downloads table. A Manager runs a fixed number of
// workers that stream each job's URL to disk, throttle progress updates to
// the database and a Broadcaster, and record the final status. Jobs left
// pending or interrupted are requeued on Start.
package download
