// Package database provides the PostgreSQL connection pool for the
// price alert store.
package database
