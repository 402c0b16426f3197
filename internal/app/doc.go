// Package app composes ArticlePulse from its configuration: stores, ledger adapter,
// grant cache, access services and the HTTP API.
//
// With no DATABASE_URL the in-memory stores are used; with no NEO_RPC_URL the ledger is
// disabled and content access relies on recorded purchases alone.
package app
