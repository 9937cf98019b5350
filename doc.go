// Package tide provides the ephemeral "Tide Reactions" service for the
// CoastlineVibe community platform.
//
// Reactions are presence-scoped: they live in an in-memory store for the
// lifetime of a client session, expire after a fixed TTL, and are purged
// wholesale when the session goes offline or idle. The store mirrors adds
// to Postgres on a best-effort basis and fans events out to realtime
// subscribers through an in-process bus.
//
// The root package holds the shared ambient pieces: the LoggerAdapter
// abstraction and identifier helpers. The moving parts live in the
// reaction, identity, lifecycle, bridge, events and notify packages.
package tide
