//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

// transcript is the append-only accumulator of handshake-message
// bytes (type + length + body, never record framing). It supports
// exactly one privileged rewrite: replacing a buffered ClientHello1
// with the synthetic message_hash wrapper once a HelloRetryRequest is
// observed.
type transcript struct {
	suite CipherSuite
	buf   []byte
}

func newTranscript(suite CipherSuite) *transcript {
	return &transcript{suite: suite}
}

// setSuite installs the negotiated cipher suite's transcript hash
// function. Writing to the transcript never needs the suite; only
// sum() does, so the suite may be set after ClientHello/ServerHello
// have already been written, once negotiation has picked it.
func (t *transcript) setSuite(suite CipherSuite) {
	t.suite = suite
}

// write appends a full handshake message (as produced by
// writeHandshakeMsg/readHandshakeMsg, i.e. already including its
// 4-byte type+length header) to the transcript.
func (t *transcript) write(msg []byte) {
	t.buf = append(t.buf, msg...)
}

// sum returns Hash(transcript-so-far).
func (t *transcript) sum() []byte {
	h := t.suite.Hash()()
	h.Write(t.buf)
	return h.Sum(nil)
}

// rewriteAfterHRR replaces the current buffer (which holds exactly
// ClientHello1) with the synthetic message_hash entry mandated by RFC
// 8446 §4.4.1:
//
//	message_hash(254) || uint24(Hash.length) || Hash(CH1)
//
// It must be called exactly once, immediately after ClientHello1 has
// been fully written and before HelloRetryRequest is appended.
func (t *transcript) rewriteAfterHRR() {
	digest := t.sum()

	hdr := [4]byte{byte(HTMessageHash), 0, 0, byte(len(digest))}
	t.buf = t.buf[:0]
	t.buf = append(t.buf, hdr[:]...)
	t.buf = append(t.buf, digest...)
}

// sumWithExtra returns Hash(transcript-so-far || extra) without
// mutating the transcript buffer. Used to compute/verify a PSK binder
// (RFC 8446 §4.2.11.2): extra is ClientHelloWithoutBinders, the
// message still being processed with its pre_shared_key extension's
// Binders field stripped off entirely (not merely zero-filled).
func (t *transcript) sumWithExtra(extra []byte) []byte {
	h := t.suite.Hash()()
	h.Write(t.buf)
	h.Write(extra)
	return h.Sum(nil)
}
