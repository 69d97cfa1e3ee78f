// Package bootstrap publishes and resolves the small mutable records
// that let peers find each other before any direct connection exists.
//
// A server publishes a ServerBootstrap: the ordered transport URLs it
// answers on. A user publishes a UserBootstrap: which servers carry
// their outbox, inbox and encryption traffic. Both live in the DHT as
// signed mutable items under the owner's public key, distinguished by
// salt, so resolving either needs nothing but the key itself.
package bootstrap
