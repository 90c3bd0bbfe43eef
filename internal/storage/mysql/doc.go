// Package mysql provides reference-data stores backed by MySQL. It
// encapsulates schema migrations, connection pooling, and strongly typed
// queries for the app catalog and per-user policy profiles; execution plans
// themselves are never persisted here.
package mysql
