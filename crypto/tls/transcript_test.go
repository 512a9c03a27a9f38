//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranscriptSum(t *testing.T) {
	tr := newTranscript(CipherTLSAes128GcmSha256)
	tr.write([]byte("client hello bytes"))
	tr.write([]byte("server hello bytes"))

	want := sha256.Sum256([]byte("client hello bytesserver hello bytes"))
	require.Equal(t, want[:], tr.sum())
}

func TestTranscriptSumWithExtraDoesNotMutate(t *testing.T) {
	tr := newTranscript(CipherTLSAes128GcmSha256)
	tr.write([]byte("prefix"))

	before := append([]byte(nil), tr.buf...)
	digest := tr.sumWithExtra([]byte("suffix"))

	want := sha256.Sum256([]byte("prefixsuffix"))
	require.Equal(t, want[:], digest)
	require.Equal(t, before, tr.buf, "sumWithExtra must not mutate the buffer")
}

func TestTranscriptRewriteAfterHRR(t *testing.T) {
	tr := newTranscript(CipherTLSAes128GcmSha256)
	ch1 := []byte{byte(HTClientHello), 0, 0, 3, 0xAA, 0xBB, 0xCC}
	tr.write(ch1)

	ch1Hash := sha256.Sum256(ch1)
	tr.rewriteAfterHRR()

	require.Equal(t, byte(HTMessageHash), tr.buf[0])
	require.Equal(t, byte(len(ch1Hash)), tr.buf[3])
	require.Equal(t, ch1Hash[:], tr.buf[4:])

	tr.write([]byte("hello retry request bytes"))
	want := sha256.Sum256(append(append([]byte{}, tr.buf[:4+len(ch1Hash)]...), "hello retry request bytes"...))
	require.Equal(t, want[:], tr.sum())
}

func TestTranscriptSetSuiteChangesHash(t *testing.T) {
	tr := newTranscript(CipherTLSAes128GcmSha256)
	tr.write([]byte("abc"))
	sum256 := tr.sum()

	tr.setSuite(CipherTLSAes256GcmSha384)
	sum384 := tr.sum()

	require.NotEqual(t, len(sum256), len(sum384))
}
