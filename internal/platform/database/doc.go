// Package database implements the store interfaces on top of database/sql
// through sqlx. Two drivers are supported: sqlite3 (mattn/go-sqlite3) for a
// local archive file and pgx (jackc/pgx stdlib) for PostgreSQL. Queries are
// written with ? placeholders and rebound for the driver in use, and the
// schema is managed by goose migrations embedded in the binary.
package database
