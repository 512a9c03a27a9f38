//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package hkdf implements RFC 5869 HKDF-Extract and HKDF-Expand as
// used by the TLS 1.3 key schedule (RFC 8446 §7.1). It is
// self-contained rather than wrapping golang.org/x/crypto/hkdf so
// that Expand can be driven incrementally the way the key schedule
// consumes it (one HkdfLabel-shaped info string per call).
package hkdf

import (
	"crypto/hmac"
	"hash"
)

// Extract implements HKDF-Extract(salt, ikm) = HMAC-Hash(salt, ikm).
// A nil or empty salt is replaced by Hash.Size() zero bytes per
// RFC 5869 §2.2.
func Extract(newHash func() hash.Hash, salt, ikm []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, newHash().Size())
	}
	mac := hmac.New(newHash, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

// Expand implements HKDF-Expand(prk, info, length) = T(1) || T(2) ||
// ... truncated to length bytes, writing directly into out.
func Expand(newHash func() hash.Hash, prk, info []byte, out []byte) {
	expander := hmac.New(newHash, prk)
	counter := []byte{1}

	var prev []byte

	for len(out) > 0 {
		expander.Reset()
		if counter[0] > 1 {
			expander.Write(prev)
		}
		expander.Write(info)
		expander.Write(counter)
		prev = expander.Sum(prev[:0])
		counter[0]++

		n := copy(out, prev)
		out = out[n:]
	}
}

// ExpandTLS13 is an alias of Expand for the hash newHash returns,
// kept for parity with the original helper this package grew from.
func ExpandTLS13(newHash func() hash.Hash, pseudorandomKey, info, out []byte) {
	Expand(newHash, pseudorandomKey, info, out)
}
