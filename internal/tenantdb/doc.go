// Package tenantdb routes a trusted tenant identifier to that school's
// isolated database.
//
// Each school owns one PostgreSQL database named by DatabaseName. The Router
// keeps a bounded, process-wide cache of connection pools keyed by tenant id.
// Pools are built lazily on first use, shared by concurrent callers and
// closed when they fall out of the cache and nobody holds them.
package tenantdb
