package record

import (
	"bytes"
	"time"

	"github.com/justinmoon/mosaic-core/keys"
	"github.com/justinmoon/mosaic-core/wire"
)

// Verify checks the record against every protocol invariant:
//
//  1. canonicality: re-encoding the decoded header and payload must
//     reproduce the stored bytes exactly (guards against any decoder
//     that was too lenient);
//  2. address binding: the claimed address must match the derivation
//     mandated for the record's kind;
//  3. signature: must verify against the author's public key;
//  4. expiration: advisory, checked against ref.
//
// On success the record transitions to verified. Verification failure
// is an expected outcome for network-sourced data and never panics.
func (r *Record) Verify(ref time.Time) error {
	if err := r.verifyCrypto(); err != nil {
		return err
	}
	if err := r.checkExpiration(ref); err != nil {
		return err
	}
	r.verified = true
	return nil
}

// VerifyIntegrity runs the canonicality, address, and signature
// checks without the time-dependent expiration policy. Storage layers
// use it when reading back bytes whose age is not their concern.
func (r *Record) VerifyIntegrity() error {
	return r.verifyCrypto()
}

// verifyCrypto runs the canonicality, address, and signature checks
// without the time-dependent expiration policy.
func (r *Record) verifyCrypto() error {
	e := wire.NewEncoder(len(r.encoded))
	r.header.encode(e, len(r.payload))
	e.Raw(r.payload)
	if !bytes.Equal(e.Bytes(), r.signedBytes()) {
		return verifyError(Tampered, "stored bytes are not the canonical re-encoding")
	}

	if r.addr != r.deriveAddress() {
		return verifyError(BadAddress, "address does not match the derivation for kind "+r.header.Kind.String())
	}

	if !r.header.Author.Verify(r.signedBytes(), r.sig) {
		return verifyError(BadSignature, "signature does not verify against the author key")
	}
	return nil
}

func (r *Record) checkExpiration(ref time.Time) error {
	exp, ok := r.Expiration()
	if !ok {
		return nil
	}
	refTS, err := TimestampFromTime(ref)
	if err != nil {
		// A reference time outside the representable range cannot be
		// compared; treat everything as unexpired before the epoch.
		return nil
	}
	if exp < refTS {
		return verifyError(Expired, "record expired at "+exp.String())
	}
	return nil
}

// compile-time guard: Signature width matches the wire layout Decode
// assumes.
var _ = [1]struct{}{}[keys.SignatureSize-64]
