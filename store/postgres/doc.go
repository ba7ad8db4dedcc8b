// Package postgres provides a PostgreSQL archive store using pgx/v5.
// Call Migrate once at startup to create the queue_failed_jobs table.
package postgres
