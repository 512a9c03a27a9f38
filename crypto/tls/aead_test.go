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

func TestDirectionKeysSealOpenRoundTrip(t *testing.T) {
	for _, suite := range []CipherSuite{
		CipherTLSAes128GcmSha256,
		CipherTLSAes256GcmSha384,
		CipherTLSChacha20Poly1305Sha256,
	} {
		t.Run(suite.String(), func(t *testing.T) {
			secret := make([]byte, suite.HashSize())
			for i := range secret {
				secret[i] = byte(i)
			}

			write, err := newDirectionKeys(suite, secret)
			require.NoError(t, err)
			read, err := newDirectionKeys(suite, secret)
			require.NoError(t, err)

			aad := []byte{byte(CTApplicationData), 0x03, 0x03, 0x00, 0x20}
			plaintext := []byte("hello tls 1.3")

			sealed, err := write.seal(aad, plaintext)
			require.NoError(t, err)

			opened, err := read.open(aad, sealed)
			require.NoError(t, err)
			require.Equal(t, plaintext, opened)
		})
	}
}

func TestDirectionKeysTamperDetection(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	secret := make([]byte, suite.HashSize())
	write, err := newDirectionKeys(suite, secret)
	require.NoError(t, err)
	read, err := newDirectionKeys(suite, secret)
	require.NoError(t, err)

	aad := []byte{byte(CTApplicationData), 0x03, 0x03, 0x00, 0x10}
	sealed, err := write.seal(aad, []byte("secret payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[0] ^= 0xFF

	_, err = read.open(aad, tampered)
	require.Error(t, err)
	var decErr DecryptError
	require.ErrorAs(t, err, &decErr)
}

func TestDirectionKeysNonceAdvances(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	secret := make([]byte, suite.HashSize())
	d, err := newDirectionKeys(suite, secret)
	require.NoError(t, err)

	n0 := append([]byte(nil), d.nonce()...)
	d.seq++
	n1 := d.nonce()
	require.NotEqual(t, n0, n1)
}

func TestCipherSuiteParams(t *testing.T) {
	require.True(t, CipherTLSAes128GcmSha256.Supported())
	require.False(t, CipherSuite(0xBEEF).Supported())
	require.Equal(t, 16, CipherTLSAes128GcmSha256.KeyLen())
	require.Equal(t, 32, CipherTLSAes256GcmSha384.KeyLen())
	require.Equal(t, 32, CipherTLSChacha20Poly1305Sha256.KeyLen())
}
