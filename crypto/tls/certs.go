//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"crypto"
	"fmt"
)

// Signer produces the certificate_verify signature over the
// handshake transcript. Private-key signing and X.509 validation stay
// out of scope for this module: callers supply a Signer backed by
// whatever key store or HSM they use, and this module only ever calls
// it with the exact signature_algorithms entry both peers negotiated.
type Signer interface {
	// Scheme returns the SignatureScheme this Signer produces
	// signatures for; it must be one of the schemes offered in the
	// peer's signature_algorithms extension.
	Scheme() SignatureScheme

	// Sign signs digest (the CertificateVerify content, already
	// hashed by this module with the scheme's hash; any padding such
	// as RSA-PSS is left to the Signer) and returns the raw
	// signature bytes to place in CertificateVerify.Signature.
	Sign(digest []byte) ([]byte, error)

	// CertificateChain returns the DER-encoded certificate_list to
	// place in the Certificate message, leaf first.
	CertificateChain() [][]byte
}

// CertificateVerifier validates a peer's certificate chain and
// signature. Like Signer, this is an external collaborator: X.509
// chain validation and trust-anchor policy stay with the caller.
type CertificateVerifier interface {
	// VerifyChain validates certificate_list (leaf first, DER
	// encoded) against whatever trust policy the caller implements.
	VerifyChain(chain [][]byte) error

	// VerifySignature checks sig against digest for scheme, using the
	// leaf public key of chain (the same slice last passed to
	// VerifyChain).
	VerifySignature(chain [][]byte, scheme SignatureScheme, digest, sig []byte) error
}

// signatureSchemeHash maps a SignatureScheme to the crypto.Hash used
// to build the digest CertificateVerify signs (RFC 8446 §4.4.3): the
// transcript hash run through this hash algorithm, under the
// "TLS 1.3, server CertificateVerify" / "TLS 1.3, client
// CertificateVerify" context string and a 64 0x20 prefix.
func signatureSchemeHash(scheme SignatureScheme) (crypto.Hash, error) {
	switch scheme {
	case SigSchemeEcdsaSecp256r1Sha256:
		return crypto.SHA256, nil
	case SigSchemeEcdsaSecp384r1Sha384:
		return crypto.SHA384, nil
	case SigSchemeRsaPssRsaeSha256:
		return crypto.SHA256, nil
	default:
		return 0, fmt.Errorf("tls: unsupported signature scheme %v", scheme)
	}
}

// certificateVerifyContext is the fixed 64-byte 0x20 pad plus context
// string prepended to the transcript hash before signing/verifying a
// CertificateVerify message (RFC 8446 §4.4.3).
func certificateVerifyContext(isServer bool, transcriptHash []byte) []byte {
	pad := make([]byte, 64)
	for i := range pad {
		pad[i] = 0x20
	}
	var context string
	if isServer {
		context = "TLS 1.3, server CertificateVerify"
	} else {
		context = "TLS 1.3, client CertificateVerify"
	}
	out := make([]byte, 0, len(pad)+len(context)+1+len(transcriptHash))
	out = append(out, pad...)
	out = append(out, context...)
	out = append(out, 0)
	out = append(out, transcriptHash...)
	return out
}

// digestForCertificateVerify hashes the content
// certificateVerifyContext builds, under scheme's hash algorithm.
func digestForCertificateVerify(scheme SignatureScheme, isServer bool, transcriptHash []byte) ([]byte, error) {
	h, err := signatureSchemeHash(scheme)
	if err != nil {
		return nil, err
	}
	hasher := h.New()
	hasher.Write(certificateVerifyContext(isServer, transcriptHash))
	return hasher.Sum(nil), nil
}
