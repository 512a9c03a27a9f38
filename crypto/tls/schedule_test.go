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

func TestKeyScheduleFullChainNoPSK(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	ks := newKeySchedule(suite)

	sharedSecret := make([]byte, 32)
	for i := range sharedSecret {
		sharedSecret[i] = byte(i + 1)
	}

	shTranscript := []byte{0x01, 0x02, 0x03}
	ks.deriveHandshakeSecret(sharedSecret, shTranscript)
	require.NotNil(t, ks.handshakeSecret)
	require.Len(t, ks.clientHandshakeTrafficSecret, suite.HashSize())
	require.Len(t, ks.serverHandshakeTrafficSecret, suite.HashSize())
	require.NotEqual(t, ks.clientHandshakeTrafficSecret, ks.serverHandshakeTrafficSecret)

	finTranscript := []byte{0x04, 0x05, 0x06}
	ks.deriveMasterSecret(finTranscript)
	require.Len(t, ks.clientApplicationTrafficSecret, suite.HashSize())
	require.Len(t, ks.serverApplicationTrafficSecret, suite.HashSize())
	require.Len(t, ks.exporterMasterSecret, suite.HashSize())

	ks.deriveResumptionMasterSecret(finTranscript)
	require.Len(t, ks.resumptionMasterSecret, suite.HashSize())
}

func TestKeyScheduleEarlySecretDeterministic(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	ks1 := newKeySchedule(suite)
	ks1.setPSK([]byte("shared psk material"))
	ks1.deriveEarlySecret()

	ks2 := newKeySchedule(suite)
	ks2.setPSK([]byte("shared psk material"))
	ks2.deriveEarlySecret()

	require.Equal(t, ks1.earlySecret, ks2.earlySecret)
	require.Equal(t, ks1.binderKey, ks2.binderKey)
}

func TestUpdateTrafficSecretChangesValue(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	secret := make([]byte, suite.HashSize())
	next := updateTrafficSecret(suite, secret)
	require.Len(t, next, suite.HashSize())
	require.NotEqual(t, secret, next)

	again := updateTrafficSecret(suite, secret)
	require.Equal(t, next, again, "updateTrafficSecret must be deterministic")
}

func TestHkdfExpandLabelLength(t *testing.T) {
	suite := CipherTLSAes256GcmSha384
	out := hkdfExpandLabel(suite, make([]byte, suite.HashSize()), "exp label", []byte("ctx"), 24)
	require.Len(t, out, 24)
}

func TestTicketPSKDependsOnNonce(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	rms := make([]byte, suite.HashSize())
	psk1 := ticketPSK(suite, rms, []byte{1})
	psk2 := ticketPSK(suite, rms, []byte{2})
	require.NotEqual(t, psk1, psk2)
}

// rfc8448ClientHello and rfc8448ServerHello are the handshake-layer
// bytes (type + u24 length + body, record framing stripped) of the
// "Simple 1-RTT Handshake" transcript from RFC 8448 §3.
var rfc8448ClientHello = mustHex(
	"0100 00c4 0303 cb34 ecb1 e781 63ba 1c38" +
		"c6da cb19 6a6d ffa2 1a8d 9912 ec18 a2ef" +
		"6283 024d ece7 0000 0613 0113 0313 0201" +
		"0000 9100 0000 0b00 0900 0006 7365 7276" +
		"6572 ff01 0001 0000 0a00 1400 1200 1d00" +
		"1700 1800 1901 0001 0101 0201 0301 0400" +
		"2300 0000 3300 2600 2400 1d00 2099 381d" +
		"e560 e4bd 43d2 3d8e 435a 7dba feb3 c06e" +
		"51c1 3cae 4d54 1369 1e52 9aaf 2c00 2b00" +
		"0302 0304 000d 0020 001e 0403 0503 0603" +
		"0203 0804 0805 0806 0401 0501 0601 0201" +
		"0402 0502 0602 0202 002d 0002 0101 001c" +
		"0002 4001")

var rfc8448ServerHello = mustHex(
	"0200 0076 0303 a6af 0612 1860 dc5e 6e60" +
		"249c d34c 9593 0c8a c5cb 1434 dac1 5577" +
		"2ed3 e269 2800 1301 0000 2e00 3300 2400" +
		"1d00 20c9 8288 7611 2095 fe66 762b dbf7" +
		"c672 e156 d6cc 253b 833d f1dd 69b1 b04e" +
		"751f 0f00 2b00 0203 04")

var rfc8448SharedSecret = mustHex(
	"8bd4 054f b55b 9d63 fdfb acf9 f04b 9f0d" +
		"35e6 d63f 5375 63ef d462 7290 0f89 492d")

var rfc8448ClientHandshakeTrafficSecret = mustHex(
	"b3ed db12 6e06 7f35 a780 b3ab f45e 2d8f" +
		"3b1a 9507 38f5 2e96 0074 6a0e 27a5 5a21")

var rfc8448ServerHandshakeTrafficSecret = mustHex(
	"b67b 7d69 0cc1 6c4e 75e5 4213 cb2d 37b4" +
		"e9c9 12bc ded9 105d 42be fd59 d391 ad38")

func mustHex(s string) []byte {
	var clean []byte
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			continue
		}
		clean = append(clean, byte(r))
	}
	out := make([]byte, len(clean)/2)
	for i := range out {
		hi := hexNibble(clean[2*i])
		lo := hexNibble(clean[2*i+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	panic("bad hex nibble")
}

// TestKeyScheduleRFC8448Vectors drives the key schedule from the fixed
// ClientHello/ServerHello bytes and ECDHE shared secret published in
// RFC 8448 §3, and checks the derived handshake traffic secrets
// against that section's published values. Unlike the other tests in
// this file, which only check internal consistency of one side's
// output against itself, this anchors the chain to an externally
// published answer.
func TestKeyScheduleRFC8448Vectors(t *testing.T) {
	suite := CipherTLSAes128GcmSha256

	tr := newTranscript(suite)
	tr.write(rfc8448ClientHello)
	tr.write(rfc8448ServerHello)
	helloHash := tr.sum()

	ks := newKeySchedule(suite)
	ks.deriveHandshakeSecret(rfc8448SharedSecret, helloHash)

	require.Equal(t, rfc8448ClientHandshakeTrafficSecret, ks.clientHandshakeTrafficSecret)
	require.Equal(t, rfc8448ServerHandshakeTrafficSecret, ks.serverHandshakeTrafficSecret)
}
