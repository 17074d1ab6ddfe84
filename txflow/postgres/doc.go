// Package postgres provides the PostgreSQL connection hub: primary/replica
// resolution, schema migrations, and a lazily initialized shared handle used
// by the transaction resource adapter.
package postgres
