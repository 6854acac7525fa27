// Package bootstrap brings an n8n database to a known-good state.
//
// An Orchestrator waits for the database to accept connections, waits for
// the application's migrations to create the tables it needs, then makes
// sure the owner account, its personal project and the membership between
// them exist, and finally resets the owner's settings. Every write is
// idempotent: a second run against the same database inserts nothing.
//
// Run never rolls back. A failed run is recovered by fixing the cause and
// running the whole orchestrator again.
package bootstrap
