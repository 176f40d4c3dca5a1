// Package coordinator is the in-memory authority for real-time chat state:
// which connections are announced, which room each connection occupies, and
// who is currently typing. The Router is the single entry point for inbound
// client events; it validates preconditions, mutates the state tables, and
// fans the resulting notifications out through a Sender. All state is owned
// exclusively by this package and lives only for the lifetime of the
// process; a reconnecting client starts from scratch and must rejoin.
package coordinator
