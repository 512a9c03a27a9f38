//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"crypto/hmac"
	"fmt"
)

// clientHandshake drives the client side of the RFC 8446 §2 full
// handshake, with optional HelloRetryRequest, PSK resumption and
// 0-RTT early data.
func (conn *Connection) clientHandshake() error {
	conn.transcript = newTranscript(0)

	groups := conn.config.groups()
	keyShares := make(map[NamedGroup]*keyShareKeys, len(groups))
	var entries []KeyShareEntry
	for _, g := range groups {
		entry, priv, err := generateKeyShare(g)
		if err != nil {
			return conn.internalErrorf("generating key share: %v", err)
		}
		entries = append(entries, *entry)
		keyShares[g] = priv
	}

	ticket, usingPSK := conn.selectTicket()
	attemptEarlyData := usingPSK && len(conn.config.EarlyData) > 0 && ticket.MaxEarlyDataSize > 0

	var localKS *keySchedule
	var pskBinderHashSize int
	if usingPSK {
		localKS = newKeySchedule(ticket.CipherSuite)
		localKS.setPSK(ticket.PSK)
		localKS.deriveEarlySecret()
		pskBinderHashSize = ticket.CipherSuite.HashSize()
		conn.transcript.setSuite(ticket.CipherSuite)
	}

	ch, err := conn.buildClientHello(entries, ticket, usingPSK, attemptEarlyData, pskBinderHashSize, nil)
	if err != nil {
		return err
	}

	body, err := Marshal(ch)
	if err != nil {
		return conn.internalErrorf("marshal client_hello: %v", err)
	}
	msg := rawHandshakeMsg(HTClientHello, body)

	if usingPSK {
		if err := conn.patchPSKBinder(msg, ticket.CipherSuite, localKS); err != nil {
			return conn.internalErrorf("computing psk binder: %v", err)
		}
	}

	conn.transcript.write(msg)
	if err := conn.writeRecord(CTHandshake, msg); err != nil {
		return err
	}

	if attemptEarlyData {
		conn.transcript.setSuite(ticket.CipherSuite)
		earlySecret := localKS.deriveEarlyTrafficSecret(conn.transcript.sum())
		keys, err := newDirectionKeys(ticket.CipherSuite, earlySecret)
		if err != nil {
			return conn.internalErrorf("deriving early traffic keys: %v", err)
		}
		conn.writeKeys = keys
		conn.usingEarlyData = true
		if _, err := conn.Write(conn.config.EarlyData); err != nil {
			return err
		}
	}

	gotHRR := false
	var sh ServerHello
	var ht HandshakeType

	for {
		var err error
		ht, body, err = conn.readHandshakeMsgRaw()
		if err != nil {
			return err
		}
		if ht != HTServerHello {
			return conn.unexpectedMessagef("expected server_hello, got %v", ht)
		}
		sh = ServerHello{}
		if n, err := UnmarshalFrom(body, &sh); err != nil || n != len(body) {
			return conn.decodeErrorf("invalid server_hello")
		}

		if !sh.IsHelloRetryRequest() {
			conn.transcript.write(rawHandshakeMsg(ht, body))
			break
		}

		if gotHRR {
			return conn.unexpectedMessagef("second HelloRetryRequest")
		}
		gotHRR = true

		conn.transcript.setSuite(sh.CipherSuite)
		conn.transcript.rewriteAfterHRR()
		conn.transcript.write(rawHandshakeMsg(ht, body))

		group, cookie, err := clientParseHRR(&sh)
		if err != nil {
			return conn.illegalParameterf("%v", err)
		}

		var retryEntries []KeyShareEntry
		if group != 0 {
			entry, priv, err := generateKeyShare(group)
			if err != nil {
				return conn.internalErrorf("generating key share for HRR: %v", err)
			}
			keyShares = map[NamedGroup]*keyShareKeys{group: priv}
			retryEntries = []KeyShareEntry{*entry}
		} else {
			// Cookie-only HelloRetryRequest: the server accepted one of
			// our offered groups and just wants a cookie round trip, so
			// ClientHello2 resends the same key_share entries as CH1.
			retryEntries = entries
		}

		ch2, err := conn.buildClientHello(retryEntries, ticket, usingPSK, false, pskBinderHashSize, cookie)
		if err != nil {
			return err
		}
		body2, err := Marshal(ch2)
		if err != nil {
			return conn.internalErrorf("marshal client_hello (2): %v", err)
		}
		msg2 := rawHandshakeMsg(HTClientHello, body2)
		if usingPSK {
			if err := conn.patchPSKBinder(msg2, ticket.CipherSuite, localKS); err != nil {
				return conn.internalErrorf("computing psk binder: %v", err)
			}
		}
		conn.transcript.write(msg2)
		if err := conn.writeRecord(CTHandshake, msg2); err != nil {
			return err
		}
	}

	if !sh.CipherSuite.Supported() {
		return conn.handshakeFailuref("server selected unsupported cipher suite %v", sh.CipherSuite)
	}
	conn.suite = sh.CipherSuite
	conn.transcript.setSuite(conn.suite)

	var sharedSecret []byte
	var selectedPSK bool
	for _, ext := range sh.Extensions {
		switch ext.Type {
		case ETKeyShare:
			entry, err := parseKeyShareSH(ext.Data)
			if err != nil {
				return conn.decodeErrorf("invalid key_share: %v", err)
			}
			priv, ok := keyShares[entry.Group]
			if !ok {
				return conn.illegalParameterf("server selected unoffered group %v", entry.Group)
			}
			sharedSecret, err = priv.agree(entry.KeyExchange)
			if err != nil {
				return conn.decodeErrorf("key agreement failed: %v", err)
			}
		case ETPreSharedKey:
			idx, err := parsePreSharedKeySH(ext.Data)
			if err != nil || idx != 0 {
				return conn.illegalParameterf("invalid pre_shared_key selection")
			}
			selectedPSK = true
		}
	}

	if selectedPSK {
		if !usingPSK || ticket.CipherSuite != conn.suite {
			return conn.illegalParameterf("server selected PSK inconsistently")
		}
		conn.ks = localKS
	} else {
		conn.ks = newKeySchedule(conn.suite)
	}

	handshakeTranscriptHash := conn.transcript.sum()
	conn.ks.deriveHandshakeSecret(sharedSecret, handshakeTranscriptHash)

	readKeys, err := newDirectionKeys(conn.suite, conn.ks.serverHandshakeTrafficSecret)
	if err != nil {
		return conn.internalErrorf("deriving server handshake keys: %v", err)
	}
	conn.readKeys = readKeys

	writeKeys, err := newDirectionKeys(conn.suite, conn.ks.clientHandshakeTrafficSecret)
	if err != nil {
		return conn.internalErrorf("deriving client handshake keys: %v", err)
	}

	ht, body, err = conn.readHandshakeMsg()
	if err != nil {
		return err
	}
	if ht != HTEncryptedExtensions {
		return conn.unexpectedMessagef("expected encrypted_extensions, got %v", ht)
	}
	var ee EncryptedExtensions
	if n, err := UnmarshalFrom(body, &ee); err != nil || n != len(body) {
		return conn.decodeErrorf("invalid encrypted_extensions")
	}
	for _, ext := range ee.Extensions {
		if ext.Type == ETEarlyData {
			conn.earlyDataAccepted = true
		}
	}

	if !selectedPSK {
		ht, body, err = conn.readHandshakeMsg()
		if err != nil {
			return err
		}
		if ht == HTCertificateRequest {
			// Mutual authentication requested. The CertificateRequest
			// is skipped: the client role never sends a Certificate
			// or CertificateVerify in reply, even when config.Signer
			// is set.
			ht, body, err = conn.readHandshakeMsg()
			if err != nil {
				return err
			}
		}
		if ht != HTCertificate {
			return conn.unexpectedMessagef("expected certificate, got %v", ht)
		}
		var cert Certificate
		if n, err := UnmarshalFrom(body, &cert); err != nil || n != len(body) {
			return conn.decodeErrorf("invalid certificate")
		}
		for _, entry := range cert.CertificateList {
			conn.peerCertChain = append(conn.peerCertChain, entry.Data)
		}
		if conn.config.CertificateVerifier == nil {
			return conn.internalErrorf("no CertificateVerifier configured for certificate authentication")
		}
		if err := conn.config.CertificateVerifier.VerifyChain(conn.peerCertChain); err != nil {
			return conn.badCertificatef(AlertBadCertificate, "certificate chain rejected: %v", err)
		}

		cvTranscriptHash := conn.transcript.sum()

		ht, body, err = conn.readHandshakeMsg()
		if err != nil {
			return err
		}
		if ht != HTCertificateVerify {
			return conn.unexpectedMessagef("expected certificate_verify, got %v", ht)
		}
		var cv CertificateVerify
		if n, err := UnmarshalFrom(body, &cv); err != nil || n != len(body) {
			return conn.decodeErrorf("invalid certificate_verify")
		}
		digest, err := digestForCertificateVerify(cv.Algorithm, true, cvTranscriptHash)
		if err != nil {
			return conn.decodeErrorf("unsupported signature scheme: %v", err)
		}
		if err := conn.config.CertificateVerifier.VerifySignature(conn.peerCertChain, cv.Algorithm, digest, cv.Signature); err != nil {
			return conn.badCertificatef(AlertDecryptError, "server signature verification failed: %v", err)
		}
	}

	serverFinishedTranscriptHash := conn.transcript.sum()

	ht, body, err = conn.readHandshakeMsg()
	if err != nil {
		return err
	}
	if ht != HTFinished {
		return conn.unexpectedMessagef("expected finished, got %v", ht)
	}
	var fin Finished
	if n, err := UnmarshalFrom(body, &fin); err != nil || n != len(body) {
		return conn.decodeErrorf("invalid finished")
	}
	expected := computeFinished(conn.suite, conn.ks.serverHandshakeTrafficSecret, serverFinishedTranscriptHash)
	if !hmac.Equal(expected, fin.VerifyData) {
		return conn.decodeErrorf("server finished verification failed")
	}
	masterTranscriptHash := conn.transcript.sum()

	if conn.usingEarlyData && conn.earlyDataAccepted {
		if err := conn.sendEndOfEarlyData(); err != nil {
			return err
		}
	}
	conn.writeKeys = writeKeys

	clientFinishedTranscriptHash := conn.transcript.sum()
	clientFin := computeFinished(conn.suite, conn.ks.clientHandshakeTrafficSecret, clientFinishedTranscriptHash)
	finBody, err := Marshal(&Finished{VerifyData: clientFin})
	if err != nil {
		return conn.internalErrorf("marshal finished: %v", err)
	}
	if err := conn.writeHandshakeMsg(HTFinished, finBody); err != nil {
		return err
	}

	conn.ks.deriveMasterSecret(masterTranscriptHash)

	appReadKeys, err := newDirectionKeys(conn.suite, conn.ks.serverApplicationTrafficSecret)
	if err != nil {
		return conn.internalErrorf("deriving server application keys: %v", err)
	}
	appWriteKeys, err := newDirectionKeys(conn.suite, conn.ks.clientApplicationTrafficSecret)
	if err != nil {
		return conn.internalErrorf("deriving client application keys: %v", err)
	}
	conn.readKeys = appReadKeys
	conn.writeKeys = appWriteKeys

	conn.ks.deriveResumptionMasterSecret(conn.transcript.sum())
	conn.state = stateConnected
	return nil
}

// selectTicket consults the client's hostname-keyed single-ticket
// cache for a usable resumption PSK. It returns ok=false if
// resumption is not configured or no ticket is cached for
// config.ServerName.
func (conn *Connection) selectTicket() (*StoredTicket, bool) {
	if conn.config.ClientTicketStore == nil || conn.config.ServerName == "" {
		return nil, false
	}
	return conn.config.ClientTicketStore.Get(conn.config.ServerName, conn.now())
}

// buildClientHello assembles a ClientHello (or its post-HRR second
// form) with the given key_share entries and, if usingPSK, a
// pre_shared_key extension whose binder is still the zero-filled
// placeholder patchPSKBinder will later overwrite in place. cookie is
// non-nil only when building ClientHello2 in response to a
// HelloRetryRequest that carried a cookie extension, which must be
// echoed back unchanged (RFC 8446 §4.2.2).
func (conn *Connection) buildClientHello(entries []KeyShareEntry, ticket *StoredTicket, usingPSK, attemptEarlyData bool, binderSize int, cookie []byte) (*ClientHello, error) {
	var random [32]byte
	if err := randomBytes(random[:]); err != nil {
		return nil, conn.internalErrorf("generating client random: %v", err)
	}
	sessionID := make([]byte, 32)
	if err := randomBytes(sessionID); err != nil {
		return nil, conn.internalErrorf("generating legacy_session_id: %v", err)
	}

	var exts []Extension

	ext, err := buildSupportedVersionsCH([]ProtocolVersion{VersionTLS13})
	if err != nil {
		return nil, err
	}
	exts = append(exts, ext)

	ext, err = buildSupportedGroups(conn.config.groups())
	if err != nil {
		return nil, err
	}
	exts = append(exts, ext)

	ext, err = buildSignatureAlgorithms(conn.config.signatureSchemes())
	if err != nil {
		return nil, err
	}
	exts = append(exts, ext)

	ext, err = buildKeyShareCH(entries)
	if err != nil {
		return nil, err
	}
	exts = append(exts, ext)

	if conn.config.ServerName != "" {
		ext, err = buildServerName(conn.config.ServerName)
		if err != nil {
			return nil, err
		}
		exts = append(exts, ext)
	}

	if conn.config.RecordSizeLimit > 0 {
		ext, err = buildRecordSizeLimit(conn.config.RecordSizeLimit)
		if err != nil {
			return nil, err
		}
		exts = append(exts, ext)
	}

	if cookie != nil {
		ext, err = buildCookie(cookie)
		if err != nil {
			return nil, err
		}
		exts = append(exts, ext)
	}

	if usingPSK {
		ext, err = buildPSKKeyExchangeModes([]PSKKeyExchangeMode{PskKeModePSKWithDHE})
		if err != nil {
			return nil, err
		}
		exts = append(exts, ext)
	}

	if attemptEarlyData {
		exts = append(exts, buildEarlyDataEmpty())
	}

	if usingPSK {
		placeholder := make([]byte, binderSize)
		pskExt, err := buildPreSharedKeyCH(&PreSharedKeyExtensionClient{
			Identities: []PskIdentity{{
				Identity:            ticket.Ticket,
				ObfuscatedTicketAge: ticket.obfuscatedAge(conn.now()),
			}},
			Binders: [][]byte{placeholder},
		})
		if err != nil {
			return nil, err
		}
		exts = append(exts, pskExt) // must be last, per RFC 8446 §4.2.11
	}

	ch := &ClientHello{
		LegacyVersion:            VersionTLS12,
		Random:                   random,
		LegacySessionID:          sessionID,
		CipherSuites:             conn.config.cipherSuites(),
		LegacyCompressionMethods: []byte{0},
		Extensions:               exts,
	}
	return ch, nil
}

// patchPSKBinder computes the PSK binder over conn.transcript-so-far
// plus ClientHelloWithoutBinders (msg with its pre_shared_key
// extension's entire Binders field, not just the binder bytes,
// stripped off) and overwrites msg's trailing binder bytes in place
// with the real value (RFC 8446 §4.2.11.2). The binder hash input
// excludes the Binders field outright rather than including it
// zero-filled: the outer message length and extensions-block length
// already reflect the full final message, which is what RFC 8446
// requires, but the bytes actually hashed stop right before the
// Binders vector. Because pre_shared_key is always the last extension
// and its Binders vector is the last field written, that field
// occupies exactly the last pskBinderFieldLen(n) bytes of msg. msg has
// not yet been appended to the transcript when this runs, so
// transcript-so-far correctly excludes it — this matters for the
// post-HelloRetryRequest ClientHello, whose binder covers
// message_hash(CH1)||HelloRetryRequest||truncated(CH2).
func (conn *Connection) patchPSKBinder(msg []byte, suite CipherSuite, ks *keySchedule) error {
	n := suite.HashSize()
	binderFieldLen := pskBinderFieldLen(n)
	if len(msg) < binderFieldLen {
		return fmt.Errorf("tls: client_hello too short for binder")
	}
	withoutBinders := msg[:len(msg)-binderFieldLen]
	digest := conn.transcript.sumWithExtra(withoutBinders)

	finKey := finishedKey(suite, ks.binderKey)
	mac := hmac.New(suite.Hash(), finKey)
	mac.Write(digest)
	binder := mac.Sum(nil)

	copy(msg[len(msg)-n:], binder)
	return nil
}

// clientParseHRR extracts the server's requested group, if any, from a
// HelloRetryRequest's key_share extension (RFC 8446 §4.1.4) along with
// its optional cookie extension (RFC 8446 §4.2.2), which the client
// must echo back unchanged in ClientHello2 if present. A
// HelloRetryRequest legally carries key_share, cookie, both, or
// (degenerate but legal) neither; group is 0 when key_share is absent,
// meaning the client should resend its original key_share entries
// unchanged.
func clientParseHRR(sh *ServerHello) (group NamedGroup, cookie []byte, err error) {
	for _, ext := range sh.Extensions {
		switch ext.Type {
		case ETKeyShare:
			group, err = parseKeyShareHRR(ext.Data)
			if err != nil {
				return 0, nil, err
			}
		case ETCookie:
			cookie, err = parseCookie(ext.Data)
			if err != nil {
				return 0, nil, err
			}
		}
	}
	return group, cookie, nil
}

// sendEndOfEarlyData sends the end_of_early_data message under the
// still-current early traffic write keys, then hands write-key
// ownership to the caller, which installs handshake traffic keys next
// (RFC 8446 §4.5).
func (conn *Connection) sendEndOfEarlyData() error {
	return conn.writeHandshakeMsg(HTEndOfEarlyData, nil)
}

// computeFinished computes a Finished message's verify_data (RFC 8446
// §4.4.4): HMAC(finished_key, Transcript-Hash(Messages)).
func computeFinished(suite CipherSuite, trafficSecret, transcriptHash []byte) []byte {
	finKey := finishedKey(suite, trafficSecret)
	mac := hmac.New(suite.Hash(), finKey)
	mac.Write(transcriptHash)
	return mac.Sum(nil)
}
