// Package accounts keeps the durable registry of managed platform
// identities: who is registered, which session credential belongs to them
// and which destination groups they broadcast to. The registry file is the
// source of truth across restarts; every successful mutation rewrites it
// in full.
package accounts
