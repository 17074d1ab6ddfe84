// Package postgres implements the transaction.Resource contract over a
// PostgreSQL connection, including savepoint management for nested segments.
package postgres
