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

func TestMarshalUnmarshalClientHello(t *testing.T) {
	ch := &ClientHello{
		LegacyVersion:   VersionTLS12,
		LegacySessionID: []byte{1, 2, 3},
		CipherSuites:    []CipherSuite{CipherTLSAes128GcmSha256, CipherTLSChacha20Poly1305Sha256},
		Extensions: []Extension{
			{Type: ETServerName, Data: []byte("example.com")},
			{Type: ETSupportedVersions, Data: []byte{2, 0x03, 0x04}},
		},
	}
	ch.Random[0] = 0xAA
	ch.Random[31] = 0xBB

	data, err := Marshal(ch)
	require.NoError(t, err)

	var got ClientHello
	n, err := UnmarshalFrom(data, &got)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, ch.LegacyVersion, got.LegacyVersion)
	require.Equal(t, ch.Random, got.Random)
	require.Equal(t, ch.LegacySessionID, got.LegacySessionID)
	require.Equal(t, ch.CipherSuites, got.CipherSuites)
	require.Equal(t, ch.Extensions, got.Extensions)
}

type u16Vector struct {
	V []byte `tls:"u16"`
}

func TestUnmarshalTruncatedVector(t *testing.T) {
	// u16 vector header claims 4 bytes of content but only 2 follow.
	data := []byte{0, 4, 0xAA, 0xBB}
	var out u16Vector
	_, err := UnmarshalFrom(data, &out)
	require.Error(t, err)
}

func TestVectorLengthLimits(t *testing.T) {
	big := make([]byte, 0x10000)
	_, err := appendVector(nil, "u16", big)
	require.Error(t, err)

	ok, err := appendVector(nil, "u8", make([]byte, 0xff))
	require.NoError(t, err)
	require.Len(t, ok, 0xff+1)
}

func TestMarshalFinishedRawVector(t *testing.T) {
	f := &Finished{VerifyData: []byte{1, 2, 3, 4}}
	data, err := Marshal(f)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, data)

	var got Finished
	got.VerifyData = make([]byte, 4)
	n, err := UnmarshalFrom(data, &got)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestKeyShareEntryBytes(t *testing.T) {
	e := &KeyShareEntry{Group: GroupX25519, KeyExchange: []byte{1, 2, 3, 4}}
	data := e.Bytes()

	var got KeyShareEntry
	n, err := UnmarshalFrom(data, &got)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, e.Group, got.Group)
	require.Equal(t, e.KeyExchange, got.KeyExchange)
}
