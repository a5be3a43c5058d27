// Package engine is the composition root that assembles the database, tool
// registry, model provider, session store, tracing and agent from
// configuration, and exposes them through a frontend-agnostic API.
// Frontends interact with Engine and Session types and observe activity
// through an EventBus.
package engine
