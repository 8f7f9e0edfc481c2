// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED reservation in a single UPDATE, embedded SQL
// migrations.
package postgres
