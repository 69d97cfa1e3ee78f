// Package record implements the Mosaic record envelope: a signed,
// addressable, immutable unit of exchange.
//
// A record is a header, a payload and a signature; the signature
// covers the canonical encoding of the header and payload. Records are
// constructed
// once by their author and never mutated; any change is a new record.
//
// A freshly decoded record is unverified. Only records that have passed
// Verify may be trusted or re-announced; the transition is
// one-directional and must be repeated for any input whose provenance
// is not already trusted.
package record
