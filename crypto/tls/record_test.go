//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProtectUnprotectRoundTrip(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	secret := make([]byte, suite.HashSize())
	for i := range secret {
		secret[i] = byte(i + 1)
	}

	clientNet, _ := net.Pipe()
	conn := NewConnection(clientNet, RoleClient, &Config{})
	conn.suite = suite

	keys, err := newDirectionKeys(suite, secret)
	require.NoError(t, err)
	conn.writeKeys = keys
	conn.readKeys = keys

	ciphertext, err := conn.protect(CTHandshake, []byte("hello"))
	require.NoError(t, err)

	// unprotect advances the sequence number too, so use a fresh set
	// of keys sharing the same secret/state as of before protect.
	readKeys, err := newDirectionKeys(suite, secret)
	require.NoError(t, err)
	conn.readKeys = readKeys

	content, ct, err := conn.unprotect(ciphertext)
	require.NoError(t, err)
	require.Equal(t, CTHandshake, ct)
	require.Equal(t, []byte("hello"), content)
}

func TestUnprotectAllZeroInnerPlaintextIsDecodeError(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	secret := make([]byte, suite.HashSize())

	clientNet, _ := net.Pipe()
	conn := NewConnection(clientNet, RoleClient, &Config{})
	conn.suite = suite

	keys, err := newDirectionKeys(suite, secret)
	require.NoError(t, err)
	conn.writeKeys = keys

	var aad [5]byte
	aad[0] = byte(CTApplicationData)
	bo.PutUint16(aad[1:3], uint16(VersionTLS12))
	bo.PutUint16(aad[3:5], uint16(8+16))
	ciphertext := keys.aead.Seal(nil, keys.nonce(), make([]byte, 8), aad[:])

	readKeys, err := newDirectionKeys(suite, secret)
	require.NoError(t, err)
	conn.readKeys = readKeys

	_, _, err = conn.unprotect(ciphertext)
	require.ErrorIs(t, err, errNoInnerContentType)
}

func TestUnprotectAEADFailureIsNotDecodeError(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	secret := make([]byte, suite.HashSize())

	clientNet, _ := net.Pipe()
	conn := NewConnection(clientNet, RoleClient, &Config{})
	conn.suite = suite

	keys, err := newDirectionKeys(suite, secret)
	require.NoError(t, err)
	conn.readKeys = keys

	garbage := make([]byte, 32)
	_, _, err = conn.unprotect(garbage)
	require.Error(t, err)
	require.NotErrorIs(t, err, errNoInnerContentType)
	var decryptErr DecryptError
	require.ErrorAs(t, err, &decryptErr)
}
