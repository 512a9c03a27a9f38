//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"errors"
)

// errNoInnerContentType distinguishes a TLSInnerPlaintext that
// decrypted and authenticated correctly but carries no recoverable
// content type (every byte including the content type is zero) from
// an AEAD authentication failure. RFC 8446 §5.2 maps the former to
// decode_error and the latter to bad_record_mac.
var errNoInnerContentType = errors.New("tls: inner plaintext has no content type")

// maxPlaintextLen is the maximum TLSPlaintext.fragment length (RFC
// 8446 §5.1): 2^14 bytes.
const maxPlaintextLen = 1 << 14

// maxCiphertextLen is the maximum TLSCiphertext.fragment length: the
// plaintext limit plus the 256 bytes of expansion RFC 8446 §5.2
// allows (content type byte, padding and AEAD tag).
const maxCiphertextLen = maxPlaintextLen + 256

// maxChangeCipherSpecSpam bounds the number of middlebox-compatibility
// change_cipher_spec records (RFC 8446 §5, appendix D.4) tolerated
// before the peer is treated as abusive.
const maxChangeCipherSpecSpam = 32

// readRecord reads one TLSPlaintext/TLSCiphertext record off the
// wire, unprotecting it with the current read keys if any are
// installed. It folds away change_cipher_spec records transparently
// and returns an incoming alert as an error. Otherwise it returns the
// inner content type and its fragment.
func (conn *Connection) readRecord() (ContentType, []byte, error) {
	for {
		ct, fragment, err := conn.readRawRecord()
		if err != nil {
			return CTInvalid, nil, err
		}

		if conn.readKeys != nil && ct == CTApplicationData {
			inner, innerCT, err := conn.unprotect(fragment)
			if err != nil {
				if errors.Is(err, errNoInnerContentType) {
					return CTInvalid, nil, conn.sendAlert(AlertDecodeError)
				}
				return CTInvalid, nil, conn.sendAlert(AlertBadRecordMAC)
			}
			ct, fragment = innerCT, inner
		}

		switch ct {
		case CTChangeCipherSpec:
			if err := conn.recvChangeCipherSpec(fragment); err != nil {
				return CTInvalid, nil, err
			}
			continue
		case CTAlert:
			return CTInvalid, nil, conn.recvAlert(fragment)
		default:
			return ct, fragment, nil
		}
	}
}

func (conn *Connection) readRawRecord() (ContentType, []byte, error) {
	var hdr [5]byte
	if _, err := readFull(conn.conn, hdr[:]); err != nil {
		return CTInvalid, nil, err
	}
	ct := ContentType(hdr[0])
	length := int(bo.Uint16(hdr[3:5]))
	if length > maxCiphertextLen {
		return CTInvalid, nil, conn.sendAlert(AlertRecordOverflow)
	}

	fragment := make([]byte, length)
	if _, err := readFull(conn.conn, fragment); err != nil {
		return CTInvalid, nil, err
	}
	return ct, fragment, nil
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// writeRecord fragments data (an inner content type's plaintext) into
// records of at most conn.fragmentLimit() bytes, protecting each one
// if write keys are installed.
func (conn *Connection) writeRecord(ct ContentType, data []byte) error {
	if len(data) == 0 {
		return conn.writeOneRecord(ct, nil)
	}
	limit := conn.fragmentLimit()
	for off := 0; off < len(data); off += limit {
		end := off + limit
		if end > len(data) {
			end = len(data)
		}
		if err := conn.writeOneRecord(ct, data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (conn *Connection) fragmentLimit() int {
	if conn.peerRecordSizeLimit > 0 && int(conn.peerRecordSizeLimit) < maxPlaintextLen {
		return int(conn.peerRecordSizeLimit)
	}
	return maxPlaintextLen
}

func (conn *Connection) writeOneRecord(ct ContentType, fragment []byte) error {
	outerType := ct
	payload := fragment

	if conn.writeKeys != nil {
		var err error
		payload, err = conn.protect(ct, fragment)
		if err != nil {
			return conn.internalErrorf("protecting record: %v", err)
		}
		outerType = CTApplicationData
	}

	var hdr [5]byte
	hdr[0] = byte(outerType)
	bo.PutUint16(hdr[1:3], uint16(VersionTLS12))
	bo.PutUint16(hdr[3:5], uint16(len(payload)))

	if _, err := conn.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.conn.Write(payload)
	return err
}

// protect implements RFC 8446 §5.2: wrap content in a
// TLSInnerPlaintext (content || content_type || zero padding), seal
// it under the write keys with the outer record header as additional
// data, and return the ciphertext.
func (conn *Connection) protect(ct ContentType, content []byte) ([]byte, error) {
	inner := make([]byte, 0, len(content)+1)
	inner = append(inner, content...)
	inner = append(inner, byte(ct))

	sealedLen := len(inner) + 16 // AEAD tag
	var aad [5]byte
	aad[0] = byte(CTApplicationData)
	bo.PutUint16(aad[1:3], uint16(VersionTLS12))
	bo.PutUint16(aad[3:5], uint16(sealedLen))

	return conn.writeKeys.seal(aad[:], inner)
}

// unprotect reverses protect: it opens the AEAD ciphertext, then
// strips the TLSInnerPlaintext's trailing zero padding and recovers
// the real content type, per RFC 8446 §5.2.
func (conn *Connection) unprotect(ciphertext []byte) ([]byte, ContentType, error) {
	var aad [5]byte
	aad[0] = byte(CTApplicationData)
	bo.PutUint16(aad[1:3], uint16(VersionTLS12))
	bo.PutUint16(aad[3:5], uint16(len(ciphertext)))

	inner, err := conn.readKeys.open(aad[:], ciphertext)
	if err != nil {
		return nil, CTInvalid, err
	}

	i := len(inner) - 1
	for i >= 0 && inner[i] == 0 {
		i--
	}
	if i < 0 {
		return nil, CTInvalid, errNoInnerContentType
	}
	return inner[:i], ContentType(inner[i]), nil
}

// recvChangeCipherSpec accepts and discards a middlebox-compatibility
// change_cipher_spec record (RFC 8446 appendix D.4), up to a bounded
// number per connection.
func (conn *Connection) recvChangeCipherSpec(data []byte) error {
	if len(data) != 1 || data[0] != 1 {
		return conn.decodeErrorf("invalid change_cipher_spec")
	}
	conn.ccsReceived++
	if conn.ccsReceived > maxChangeCipherSpecSpam {
		return conn.unexpectedMessagef("too many change_cipher_spec records")
	}
	return nil
}

// recvAlert decodes a received alert and turns it into a Go error;
// fatal alerts and close_notify terminate the connection.
func (conn *Connection) recvAlert(data []byte) error {
	if len(data) != 2 {
		return conn.decodeErrorf("invalid alert")
	}
	a := Alert{Level: AlertLevel(data[0]), Description: AlertDescription(data[1])}
	return a
}

// writeAlert sends a raw alert record without going through the
// decode/illegal-parameter helpers (those call writeAlert themselves).
func (conn *Connection) writeAlert(a Alert) error {
	return conn.writeRecord(CTAlert, a.Bytes())
}

// readHandshakeMsgRaw reads and reassembles one handshake message,
// transparently consuming change_cipher_spec and terminating on
// alerts. Unlike readHandshakeMsg it does NOT append the message to
// the transcript: callers that must inspect a message before deciding
// how it folds into transcript history (HelloRetryRequest detection)
// use this directly and append explicitly.
func (conn *Connection) readHandshakeMsgRaw() (HandshakeType, []byte, error) {
	ct, data, err := conn.readRecord()
	if err != nil {
		return 0, nil, err
	}
	if ct != CTHandshake {
		return 0, nil, conn.unexpectedMessagef("expected handshake record, got %v", ct)
	}
	for len(data) < 4 {
		_, more, err := conn.readRecord()
		if err != nil {
			return 0, nil, err
		}
		data = append(data, more...)
	}
	length := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	for len(data)-4 < length {
		_, more, err := conn.readRecord()
		if err != nil {
			return 0, nil, err
		}
		data = append(data, more...)
	}
	if len(data)-4 != length {
		return 0, nil, conn.decodeErrorf("trailing bytes after handshake message")
	}
	return HandshakeType(data[0]), data[4:], nil
}

// readHandshakeMsg reads one handshake message and appends its raw
// bytes (header + body) to the transcript, the common case for every
// message except a ServerHello/ClientHello that might need
// HelloRetryRequest transcript surgery first.
func (conn *Connection) readHandshakeMsg() (HandshakeType, []byte, error) {
	ht, body, err := conn.readHandshakeMsgRaw()
	if err != nil {
		return 0, nil, err
	}
	conn.transcript.write(rawHandshakeMsg(ht, body))
	return ht, body, nil
}

// rawHandshakeMsg reconstructs the header+body bytes of a handshake
// message already split by readHandshakeMsgRaw.
func rawHandshakeMsg(ht HandshakeType, body []byte) []byte {
	msg := make([]byte, 4+len(body))
	msg[0] = byte(ht)
	msg[1] = byte(len(body) >> 16)
	msg[2] = byte(len(body) >> 8)
	msg[3] = byte(len(body))
	copy(msg[4:], body)
	return msg
}

// writeHandshakeMsg marshals body under handshake type ht, fills in
// the message header, appends it to the transcript, and writes it to
// the wire.
func (conn *Connection) writeHandshakeMsg(ht HandshakeType, body []byte) error {
	msg := rawHandshakeMsg(ht, body)
	conn.transcript.write(msg)
	return conn.writeRecord(CTHandshake, msg)
}

// writeLegacyChangeCipherSpec emits the single-byte
// middlebox-compatibility change_cipher_spec record (RFC 8446
// appendix D.4). Neither handshake role calls it, so no
// change_cipher_spec record is ever sent.
func (conn *Connection) writeLegacyChangeCipherSpec() error {
	return conn.writeOneRecord(CTChangeCipherSpec, []byte{1})
}
