//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"github.com/markkurossi/tls13/crypto/hkdf"
)

// hkdfExpandLabel implements HKDF-Expand-Label as per RFC 8446 §7.1:
//
//	struct {
//	    uint16 length = Length;
//	    opaque label<7..255> = "tls13 " + Label;
//	    opaque context<0..255> = Context;
//	} HkdfLabel;
func hkdfExpandLabel(suite CipherSuite, secret []byte, label string, context []byte, length int) []byte {
	const prefix = "tls13 "

	hkdfLabel := make([]byte, 0, 2+1+len(prefix)+len(label)+1+len(context))
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	hkdfLabel = append(hkdfLabel, byte(len(prefix)+len(label)))
	hkdfLabel = append(hkdfLabel, prefix...)
	hkdfLabel = append(hkdfLabel, label...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)

	out := make([]byte, length)
	hkdf.Expand(suite.Hash(), secret, hkdfLabel, out)
	return out
}

// deriveSecret implements Derive-Secret(Secret, Label, Messages) =
// HKDF-Expand-Label(Secret, Label, Transcript-Hash(Messages),
// Hash.length).
func deriveSecret(suite CipherSuite, secret []byte, label string, transcriptHash []byte) []byte {
	return hkdfExpandLabel(suite, secret, label, transcriptHash, suite.HashSize())
}

// emptyTranscriptHash returns Hash("").
func emptyTranscriptHash(suite CipherSuite) []byte {
	h := suite.Hash()()
	return h.Sum(nil)
}

// keySchedule carries the linear progression of RFC 8446 §7.1 secrets:
// each rung is consumed to derive the next and to produce the traffic
// secrets needed at that stage. Every rung stays in the struct for the
// life of the Connection; none is cleared or overwritten once derived.
type keySchedule struct {
	suite CipherSuite

	// PSK-derived chain.
	pskSecret []byte // the PSK itself, or Hash.length zero bytes
	earlySecret []byte
	binderKey   []byte

	// ECDHE-derived chain.
	handshakeSecret []byte
	masterSecret    []byte

	clientHandshakeTrafficSecret []byte
	serverHandshakeTrafficSecret []byte

	clientApplicationTrafficSecret []byte
	serverApplicationTrafficSecret []byte

	exporterMasterSecret   []byte
	resumptionMasterSecret []byte
}

func newKeySchedule(suite CipherSuite) *keySchedule {
	zero := make([]byte, suite.HashSize())
	return &keySchedule{suite: suite, pskSecret: zero}
}

// setPSK installs a resumption PSK in place of the zero default. It
// must be called, if at all, before any derive* method.
func (ks *keySchedule) setPSK(psk []byte) {
	ks.pskSecret = psk
}

// deriveEarlySecret computes the Early Secret and the two secrets
// that branch off it before the handshake secret is known: the PSK
// binder key and (via deriveEarlyTrafficSecret) the 0-RTT traffic
// secret. RFC 8446 §7.1 distinguishes "ext binder" from "res binder";
// this implementation only ever resumes via tickets, so the binder key
// always uses "res binder".
func (ks *keySchedule) deriveEarlySecret() {
	ks.earlySecret = hkdf.Extract(ks.suite.Hash(), nil, ks.pskSecret)
	ks.binderKey = deriveSecret(ks.suite, ks.earlySecret, "res binder", emptyTranscriptHash(ks.suite))
}

// deriveEarlyTrafficSecret derives client_early_traffic_secret over
// the transcript up to and including ClientHello.
func (ks *keySchedule) deriveEarlyTrafficSecret(transcriptHash []byte) []byte {
	return deriveSecret(ks.suite, ks.earlySecret, "c e traffic", transcriptHash)
}

// deriveEarlyExporterSecret derives early_exporter_master_secret.
func (ks *keySchedule) deriveEarlyExporterSecret(transcriptHash []byte) []byte {
	return deriveSecret(ks.suite, ks.earlySecret, "e exp master", transcriptHash)
}

// deriveHandshakeSecret consumes the Early Secret (via "derived") and
// the ECDHE shared secret (or an all-zero value for PSK-only modes)
// to produce the Handshake Secret and both handshake traffic
// secrets, over the transcript ending at ServerHello.
func (ks *keySchedule) deriveHandshakeSecret(sharedSecret []byte, transcriptHash []byte) {
	if ks.earlySecret == nil {
		ks.deriveEarlySecret()
	}
	if sharedSecret == nil {
		sharedSecret = make([]byte, ks.suite.HashSize())
	}
	derived := deriveSecret(ks.suite, ks.earlySecret, "derived", emptyTranscriptHash(ks.suite))
	ks.handshakeSecret = hkdf.Extract(ks.suite.Hash(), derived, sharedSecret)

	ks.clientHandshakeTrafficSecret = deriveSecret(ks.suite, ks.handshakeSecret, "c hs traffic", transcriptHash)
	ks.serverHandshakeTrafficSecret = deriveSecret(ks.suite, ks.handshakeSecret, "s hs traffic", transcriptHash)
}

// deriveMasterSecret consumes the Handshake Secret (via "derived")
// and an all-zero IKM to produce the Master Secret and the
// application traffic secrets + exporter master secret, over the
// transcript ending at server Finished.
func (ks *keySchedule) deriveMasterSecret(transcriptHash []byte) {
	derived := deriveSecret(ks.suite, ks.handshakeSecret, "derived", emptyTranscriptHash(ks.suite))
	zero := make([]byte, ks.suite.HashSize())
	ks.masterSecret = hkdf.Extract(ks.suite.Hash(), derived, zero)

	ks.clientApplicationTrafficSecret = deriveSecret(ks.suite, ks.masterSecret, "c ap traffic", transcriptHash)
	ks.serverApplicationTrafficSecret = deriveSecret(ks.suite, ks.masterSecret, "s ap traffic", transcriptHash)
	ks.exporterMasterSecret = deriveSecret(ks.suite, ks.masterSecret, "exp master", transcriptHash)
}

// deriveResumptionMasterSecret derives resumption_master_secret over
// the transcript ending at client Finished. Called once, after the
// client Finished has been verified/sent.
func (ks *keySchedule) deriveResumptionMasterSecret(transcriptHash []byte) {
	ks.resumptionMasterSecret = deriveSecret(ks.suite, ks.masterSecret, "res master", transcriptHash)
}

// finishedKey derives the Finished-message HMAC key from a handshake
// traffic secret (RFC 8446 §4.4.4).
func finishedKey(suite CipherSuite, trafficSecret []byte) []byte {
	return hkdfExpandLabel(suite, trafficSecret, "finished", nil, suite.HashSize())
}

// updateTrafficSecret implements KeyUpdate's secret rotation (RFC
// 8446 §7.2): application_traffic_secret_N+1 =
// HKDF-Expand-Label(application_traffic_secret_N, "traffic upd", "",
// Hash.length).
func updateTrafficSecret(suite CipherSuite, secret []byte) []byte {
	return hkdfExpandLabel(suite, secret, "traffic upd", nil, suite.HashSize())
}

// ticketPSK derives the PSK associated with a session ticket (RFC
// 8446 §4.6.1): PSK = HKDF-Expand-Label(resumption_master_secret,
// "resumption", ticket_nonce, Hash.length).
func ticketPSK(suite CipherSuite, resumptionMasterSecret, ticketNonce []byte) []byte {
	return hkdfExpandLabel(suite, resumptionMasterSecret, "resumption", ticketNonce, suite.HashSize())
}
