//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"fmt"
)

// ContentType specifies record layer record types.
type ContentType uint8

// Record layer record types.
const (
	CTInvalid          ContentType = 0
	CTChangeCipherSpec ContentType = 20
	CTAlert            ContentType = 21
	CTHandshake        ContentType = 22
	CTApplicationData  ContentType = 23
)

func (ct ContentType) String() string {
	name, ok := contentTypes[ct]
	if ok {
		return name
	}
	return fmt.Sprintf("{ContentType %d}", ct)
}

var contentTypes = map[ContentType]string{
	CTInvalid:          "invalid",
	CTChangeCipherSpec: "change_cipher_spec",
	CTAlert:            "alert",
	CTHandshake:        "handshake",
	CTApplicationData:  "application_data",
}

// ProtocolVersion defines TLS protocol version.
type ProtocolVersion uint16

// Protocol versions.
const (
	VersionSSL30 ProtocolVersion = 0x0300
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13 ProtocolVersion = 0x0304
)

func (v ProtocolVersion) String() string {
	name, ok := protocolVersions[v]
	if ok {
		return name
	}
	return fmt.Sprintf("%04x", uint(v))
}

// Bytes returns the 2-byte wire encoding of the version.
func (v ProtocolVersion) Bytes() []byte {
	return []byte{byte(v >> 8), byte(v)}
}

var protocolVersions = map[ProtocolVersion]string{
	VersionSSL30: "SSL 3.0",
	VersionTLS10: "TLS 1.0",
	VersionTLS11: "TLS 1.1",
	VersionTLS12: "TLS 1.2",
	VersionTLS13: "TLS 1.3",
}

// HandshakeType defines handshake message types.
type HandshakeType uint8

// Handshake message types.
const (
	HTClientHello         HandshakeType = 1
	HTServerHello         HandshakeType = 2
	HTNewSessionTicket    HandshakeType = 4
	HTEndOfEarlyData      HandshakeType = 5
	HTEncryptedExtensions HandshakeType = 8
	HTCertificate         HandshakeType = 11
	HTCertificateRequest  HandshakeType = 13
	HTCertificateVerify   HandshakeType = 15
	HTFinished            HandshakeType = 20
	HTKeyUpdate           HandshakeType = 24
	// HTMessageHash is the synthetic handshake message type used to
	// replace ClientHello1 in the transcript after a
	// HelloRetryRequest (RFC 8446 §4.4.1).
	HTMessageHash HandshakeType = 254
)

func (ht HandshakeType) String() string {
	name, ok := handshakeTypes[ht]
	if ok {
		return name
	}
	return fmt.Sprintf("{HandshakeType %d}", ht)
}

var handshakeTypes = map[HandshakeType]string{
	HTClientHello:         "client_hello",
	HTServerHello:         "server_hello",
	HTNewSessionTicket:    "new_session_ticket",
	HTEndOfEarlyData:      "end_of_early_data",
	HTEncryptedExtensions: "encrypted_extensions",
	HTCertificate:         "certificate",
	HTCertificateRequest:  "certificate_request",
	HTCertificateVerify:   "certificate_verify",
	HTFinished:            "finished",
	HTKeyUpdate:           "key_update",
	HTMessageHash:         "message_hash",
}

// ClientHello implements the client_hello message.
type ClientHello struct {
	LegacyVersion            ProtocolVersion
	Random                   [32]byte
	LegacySessionID          []byte        `tls:"u8"`
	CipherSuites             []CipherSuite `tls:"u16"`
	LegacyCompressionMethods []byte        `tls:"u8"`
	Extensions               []Extension   `tls:"u16"`
}

// ServerHello implements the server_hello message. A ServerHello whose
// Random equals HelloRetryRequestRandom is in fact a
// HelloRetryRequest (RFC 8446 §4.1.3).
type ServerHello struct {
	LegacyVersion           ProtocolVersion
	Random                  [32]byte
	LegacySessionID         []byte `tls:"u8"`
	CipherSuite             CipherSuite
	LegacyCompressionMethod uint8
	Extensions              []Extension `tls:"u16"`
}

// HelloRetryRequestRandom is the fixed SHA-256 value that identifies
// a ServerHello as a HelloRetryRequest (RFC 8446 §4.1.3).
var HelloRetryRequestRandom = [32]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// IsHelloRetryRequest reports whether sh is a HelloRetryRequest.
func (sh *ServerHello) IsHelloRetryRequest() bool {
	return sh.Random == HelloRetryRequestRandom
}

// EncryptedExtensions implements the encrypted_extensions message.
type EncryptedExtensions struct {
	Extensions []Extension `tls:"u16"`
}

// CertificateEntry is one entry of the certificate_list in a
// Certificate message.
type CertificateEntry struct {
	Data       []byte      `tls:"u24"`
	Extensions []Extension `tls:"u16"`
}

// Certificate implements the certificate message.
type Certificate struct {
	CertificateRequestContext []byte             `tls:"u8"`
	CertificateList           []CertificateEntry `tls:"u24"`
}

// CertificateRequest implements the certificate_request message.
type CertificateRequest struct {
	CertificateRequestContext []byte      `tls:"u8"`
	Extensions                []Extension `tls:"u16"`
}

// CertificateVerify implements the certificate_verify message.
type CertificateVerify struct {
	Algorithm SignatureScheme
	Signature []byte `tls:"u16"`
}

// Finished implements the finished message. The verify_data length
// equals the transcript hash length of the negotiated cipher suite,
// so it is carried as a plain blob rather than a fixed-size array.
type Finished struct {
	VerifyData []byte `tls:"raw"`
}

// KeyUpdateRequest names whether the receiver of a KeyUpdate message
// must itself update its sending keys (RFC 8446 §4.6.3).
type KeyUpdateRequest uint8

// KeyUpdateRequest values.
const (
	UpdateNotRequested KeyUpdateRequest = 0
	UpdateRequested    KeyUpdateRequest = 1
)

func (r KeyUpdateRequest) String() string {
	switch r {
	case UpdateNotRequested:
		return "update_not_requested"
	case UpdateRequested:
		return "update_requested"
	default:
		return fmt.Sprintf("{KeyUpdateRequest %d}", r)
	}
}

// KeyUpdate implements the key_update message.
type KeyUpdate struct {
	RequestUpdate KeyUpdateRequest
}

// NewSessionTicket implements the new_session_ticket message.
type NewSessionTicket struct {
	TicketLifetime uint32
	TicketAgeAdd   uint32
	TicketNonce    []byte      `tls:"u8"`
	Ticket         []byte      `tls:"u16"`
	Extensions     []Extension `tls:"u16"`
}

// CipherSuite defines cipher suites.
type CipherSuite uint16

// TLS 1.3 cipher suites supported by this implementation.
const (
	CipherTLSAes128GcmSha256        CipherSuite = 0x1301
	CipherTLSAes256GcmSha384        CipherSuite = 0x1302
	CipherTLSChacha20Poly1305Sha256 CipherSuite = 0x1303
)

func (cs CipherSuite) String() string {
	name, ok := tls13CipherSuites[cs]
	if ok {
		return name
	}
	return fmt.Sprintf("{CipherSuite 0x%02x,0x%02x}", int(cs>>8), int(cs&0xff))
}

var tls13CipherSuites = map[CipherSuite]string{
	CipherTLSAes128GcmSha256:        "TLS_AES_128_GCM_SHA256",
	CipherTLSAes256GcmSha384:        "TLS_AES_256_GCM_SHA384",
	CipherTLSChacha20Poly1305Sha256: "TLS_CHACHA20_POLY1305_SHA256",
}

// NamedGroup defines named key exchange groups.
type NamedGroup uint16

// Named groups.
const (
	GroupSecp256r1      NamedGroup = 0x0017
	GroupSecp384r1      NamedGroup = 0x0018
	GroupSecp521r1      NamedGroup = 0x0019
	GroupX25519         NamedGroup = 0x001D
	GroupX448           NamedGroup = 0x001E
	GroupFfdhe2048      NamedGroup = 0x0100
	GroupFfdhe3072      NamedGroup = 0x0101
	GroupFfdhe4096      NamedGroup = 0x0102
	GroupFfdhe6144      NamedGroup = 0x0103
	GroupFfdhe8192      NamedGroup = 0x0104
	GroupX25519MLKEM768 NamedGroup = 0x11EC
)

func (group NamedGroup) String() string {
	name, ok := tls13NamedGroups[group]
	if ok {
		return name
	}
	return fmt.Sprintf("%04x", int(group))
}

// Bytes returns the 2-byte wire encoding of the group.
func (group NamedGroup) Bytes() []byte {
	return []byte{byte(group >> 8), byte(group)}
}

var tls13NamedGroups = map[NamedGroup]string{
	GroupSecp256r1:      "secp256r1",
	GroupSecp384r1:      "secp384r1",
	GroupSecp521r1:      "secp521r1",
	GroupX25519:         "x25519",
	GroupX25519MLKEM768: "X25519MLKEM768",
}

// SignatureScheme defines the signature algorithms for the
// signature_algorithms and signature_algorithms_cert extensions.
type SignatureScheme uint16

// Signature algorithms supported by this implementation.
const (
	SigSchemeEcdsaSecp256r1Sha256 SignatureScheme = 0x0403
	SigSchemeEcdsaSecp384r1Sha384 SignatureScheme = 0x0503
	SigSchemeRsaPssRsaeSha256     SignatureScheme = 0x0804
)

func (scheme SignatureScheme) String() string {
	name, ok := tls13SignatureSchemes[scheme]
	if ok {
		return name
	}
	return fmt.Sprintf("%04x", int(scheme))
}

var tls13SignatureSchemes = map[SignatureScheme]string{
	SigSchemeEcdsaSecp256r1Sha256: "ecdsa_secp256r1_sha256",
	SigSchemeEcdsaSecp384r1Sha384: "ecdsa_secp384r1_sha384",
	SigSchemeRsaPssRsaeSha256:     "rsa_pss_rsae_sha256",
}

// KeyShareEntry defines a key_share extension entry.
type KeyShareEntry struct {
	Group       NamedGroup
	KeyExchange []byte `tls:"u16"`
}

// Bytes returns the wire encoding of a single KeyShareEntry, the form
// a ServerHello key_share extension body takes. (A HelloRetryRequest
// key_share body is a bare NamedGroup instead.)
func (e *KeyShareEntry) Bytes() []byte {
	data, err := Marshal(e)
	if err != nil {
		panic(err)
	}
	return data
}

// PskIdentity is one entry of the pre_shared_key extension's
// identities list.
type PskIdentity struct {
	Identity            []byte `tls:"u16"`
	ObfuscatedTicketAge uint32
}

// PreSharedKeyExtensionClient is the ClientHello form of the
// pre_shared_key extension.
type PreSharedKeyExtensionClient struct {
	Identities []PskIdentity `tls:"u16"`
	Binders    [][]byte      `tls:"u16,u8"`
}

// PreSharedKeyExtensionServer is the ServerHello form of the
// pre_shared_key extension: the index of the selected identity.
type PreSharedKeyExtensionServer struct {
	SelectedIdentity uint16
}

// Extension defines handshake extensions.
type Extension struct {
	Type ExtensionType
	Data []byte `tls:"u16"`
}

func (ext Extension) String() string {
	return fmt.Sprintf("%v[%d]", ext.Type, len(ext.Data))
}

// ExtensionType defines the handshake protocol extensions.
type ExtensionType uint16

// ExtensionTypes implemented by this module.
const (
	ETServerName                          ExtensionType = 0  // RFC 6066
	ETSupportedGroups                     ExtensionType = 10 // RFC 8422 7919
	ETSignatureAlgorithms                 ExtensionType = 13 // RFC 8446
	ETApplicationLayerProtocolNegotiation ExtensionType = 16 // RFC 7301
	ETRecordSizeLimit                     ExtensionType = 28 // RFC 8449
	ETPreSharedKey                        ExtensionType = 41 // RFC 8446
	ETEarlyData                           ExtensionType = 42 // RFC 8446
	ETSupportedVersions                   ExtensionType = 43 // RFC 8446
	ETCookie                              ExtensionType = 44 // RFC 8446
	ETPSKKeyExchangeModes                 ExtensionType = 45 // RFC 8446
	ETKeyShare                            ExtensionType = 51 // RFC 8446
)

func (et ExtensionType) String() string {
	name, ok := tls13Extensions[et]
	if ok {
		return name
	}
	return fmt.Sprintf("{ExtensionType %d}", et)
}

var tls13Extensions = map[ExtensionType]string{
	ETServerName:                          "server_name",
	ETSupportedGroups:                     "supported_groups",
	ETSignatureAlgorithms:                 "signature_algorithms",
	ETApplicationLayerProtocolNegotiation: "application_layer_protocol_negotiation",
	ETRecordSizeLimit:                     "record_size_limit",
	ETPreSharedKey:                        "pre_shared_key",
	ETEarlyData:                           "early_data",
	ETSupportedVersions:                   "supported_versions",
	ETCookie:                              "cookie",
	ETPSKKeyExchangeModes:                 "psk_key_exchange_modes",
	ETKeyShare:                            "key_share",
}

// PSKKeyExchangeMode defines the psk_key_exchange_modes values.
type PSKKeyExchangeMode uint8

// PSK key exchange modes (RFC 8446 §4.2.9).
const (
	PskKeModePSKOnly    PSKKeyExchangeMode = 0
	PskKeModePSKWithDHE PSKKeyExchangeMode = 1
)
