// Package keys implements Mosaic identities.
//
// Users and servers are known by a 32-byte ed25519 public key proven by
// the corresponding secret key. Signing is performed over the blake3-256
// digest of canonical bytes; verification failure is an expected
// outcome and is reported as false, never as an error.
//
// Keys have printable forms: "mopub0" + base58 for public keys and
// "mosec0" + base58 for secret keys.
package keys
