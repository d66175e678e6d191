// Package postgres implements the price alert store on PostgreSQL.
//
// Triggering is decided here: MarkTriggered's conditional UPDATE is
// the only write path, so concurrent checkers (or multiple streamer
// instances) can race on the same alert and exactly one wins.
package postgres
