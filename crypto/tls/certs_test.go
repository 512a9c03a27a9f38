//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCertificateVerifyContextDiffersByRole(t *testing.T) {
	hash := []byte("transcript-hash-stand-in")
	server := certificateVerifyContext(true, hash)
	client := certificateVerifyContext(false, hash)
	require.NotEqual(t, server, client)
	require.Contains(t, string(server), "server CertificateVerify")
	require.Contains(t, string(client), "client CertificateVerify")
}

func TestDigestForCertificateVerifyLength(t *testing.T) {
	digest, err := digestForCertificateVerify(SigSchemeEcdsaSecp256r1Sha256, true, make([]byte, 32))
	require.NoError(t, err)
	require.Len(t, digest, 32)

	digest, err = digestForCertificateVerify(SigSchemeEcdsaSecp384r1Sha384, true, make([]byte, 48))
	require.NoError(t, err)
	require.Len(t, digest, 48)
}

func TestSignatureSchemeHashUnknown(t *testing.T) {
	_, err := signatureSchemeHash(SignatureScheme(0xFFFF))
	require.Error(t, err)
}
