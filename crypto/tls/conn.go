//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// Role names which side of the handshake a Connection plays.
type Role uint8

// Roles.
const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// handshakeState names the state-machine position a Connection is in,
// following the client/server state diagrams of RFC 8446 §A.1/§A.2.
// The handshake code only ever assigns stateConnected, once the
// handshake completes; Read and the post-handshake message handling
// do not consult the state.
type handshakeState uint8

const (
	stateStart handshakeState = iota
	stateWaitServerHello
	stateWaitEncryptedExtensions
	stateWaitCertCR
	stateWaitCert
	stateWaitCertVerify
	stateWaitFinished
	stateRecvdClientHello
	stateNegotiated
	stateWaitFlight2
	stateWaitEOED
	stateConnected
)

// Config carries the parameters and external collaborators a
// Connection needs. Transport, X.509 validation and private-key
// signing stay external; Signer/CertificateVerifier are those seams.
type Config struct {
	// CipherSuites is the ordered list of suites this side offers or
	// accepts. Defaults to all three supported suites, most-preferred
	// first, if empty.
	CipherSuites []CipherSuite
	// Groups is this side's supported_groups preference order.
	// Defaults to defaultGroupPreference if empty.
	Groups []NamedGroup
	// SignatureSchemes is this side's signature_algorithms preference.
	// Defaults to all supported schemes if empty.
	SignatureSchemes []SignatureScheme

	// ServerName is the SNI hostname a client offers, and the key
	// under which a client looks up/stores resumption tickets.
	ServerName string

	// Signer authenticates a server in the handshake (its
	// Certificate/CertificateVerify). A server requires it unless the
	// handshake resumes a PSK. The client role does not use it.
	Signer Signer
	// CertificateVerifier validates the peer's certificate chain and
	// signature. Required unless PSK-only resumption is the sole
	// authentication mechanism in use.
	CertificateVerifier CertificateVerifier
	// RequireClientCert makes a server send CertificateRequest.
	RequireClientCert bool

	// ClientTicketStore, when set, makes a client attempt resumption
	// (and optionally 0-RTT) against ServerName before falling back to
	// a full handshake.
	ClientTicketStore *ClientTicketStore
	// EarlyData, when non-empty, is sent as 0-RTT application data
	// immediately after ClientHello if a usable ticket is found.
	EarlyData []byte

	// TicketKey seals/opens this server's session tickets.
	TicketKey TicketKey
	// TicketLifetime is the validity window, in seconds, of tickets
	// this server mints. RFC 8446 §4.6.1 caps it at 7 days.
	TicketLifetime uint32
	// MaxEarlyDataSize, when non-zero, makes a server mint tickets
	// that advertise 0-RTT support up to this many bytes.
	MaxEarlyDataSize uint32
	// SessionTicketCount controls how many NewSessionTicket messages a
	// server sends after completing a handshake. Defaults to 1.
	SessionTicketCount int

	// RecordSizeLimit, when non-zero, advertises the record_size_limit
	// extension. It does not limit this side's own outbound records: a
	// server fragments to the limit the client advertised, and a
	// client ignores the limit a server advertises.
	RecordSizeLimit uint16

	// Logger is wrapped into the Connection's sugared logger; a nil
	// Logger gives a no-op one. The handshake and record code write no
	// log entries to it.
	Logger *zap.Logger

	// Now, if set, replaces time.Now for ticket age/lifetime
	// computations (tests only).
	Now func() time.Time

	earlyDataReplay *earlyDataReplayCache
}

func (c *Config) cipherSuites() []CipherSuite {
	if len(c.CipherSuites) > 0 {
		return c.CipherSuites
	}
	return []CipherSuite{CipherTLSAes128GcmSha256, CipherTLSAes256GcmSha384, CipherTLSChacha20Poly1305Sha256}
}

func (c *Config) groups() []NamedGroup {
	if len(c.Groups) > 0 {
		return c.Groups
	}
	return defaultGroupPreference
}

func (c *Config) signatureSchemes() []SignatureScheme {
	if len(c.SignatureSchemes) > 0 {
		return c.SignatureSchemes
	}
	return []SignatureScheme{SigSchemeEcdsaSecp256r1Sha256, SigSchemeEcdsaSecp384r1Sha384, SigSchemeRsaPssRsaeSha256}
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) replayCache() *earlyDataReplayCache {
	if c.earlyDataReplay == nil {
		c.earlyDataReplay = newEarlyDataReplayCache(2 * time.Minute)
	}
	return c.earlyDataReplay
}

// Connection implements a single TLS 1.3 connection, either role.
type Connection struct {
	conn   net.Conn
	role   Role
	config *Config
	log    *zap.SugaredLogger

	state handshakeState

	suite      CipherSuite
	ks         *keySchedule
	transcript *transcript

	readKeys, writeKeys *directionKeys

	peerRecordSizeLimit uint16
	ccsReceived         int

	usingEarlyData    bool
	earlyDataAccepted bool

	earlyDataIn io.Reader // unused; buffered 0-RTT data is kept in earlyBuf
	earlyBuf    []byte

	peerCertChain [][]byte

	incomingTickets []*NewSessionTicket
}

// NewConnection wraps conn, preparing it to run the TLS 1.3 handshake
// for role using config.
func NewConnection(conn net.Conn, role Role, config *Config) *Connection {
	if config == nil {
		config = &Config{}
	}
	var sugar *zap.SugaredLogger
	if config.Logger != nil {
		sugar = config.Logger.Sugar()
	} else {
		sugar = zap.NewNop().Sugar()
	}
	return &Connection{
		conn:   conn,
		role:   role,
		config: config,
		log:    sugar,
	}
}

func (conn *Connection) now() time.Time { return conn.config.now() }

// Handshake runs the protocol role's handshake to completion.
func (conn *Connection) Handshake() error {
	switch conn.role {
	case RoleClient:
		return conn.clientHandshake()
	case RoleServer:
		return conn.serverHandshake()
	default:
		return fmt.Errorf("tls: unknown role %v", conn.role)
	}
}

// Read returns decrypted application data. It transparently consumes
// post-handshake NewSessionTicket and KeyUpdate messages that arrive
// interleaved with application_data.
func (conn *Connection) Read(p []byte) (int, error) {
	if len(conn.earlyBuf) > 0 {
		n := copy(p, conn.earlyBuf)
		conn.earlyBuf = conn.earlyBuf[n:]
		return n, nil
	}
	for {
		ct, data, err := conn.readRecord()
		if err != nil {
			return 0, err
		}
		switch ct {
		case CTApplicationData:
			n := copy(p, data)
			if n < len(data) {
				conn.earlyBuf = append(conn.earlyBuf, data[n:]...)
			}
			return n, nil
		case CTHandshake:
			if err := conn.handlePostHandshakeMsg(data); err != nil {
				return 0, err
			}
		default:
			return 0, conn.unexpectedMessagef("unexpected record %v after handshake", ct)
		}
	}
}

// Write encrypts and sends p as application data.
func (conn *Connection) Write(p []byte) (int, error) {
	if err := conn.writeRecord(CTApplicationData, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close_notify alert and closes the underlying
// transport.
func (conn *Connection) Close() error {
	_ = conn.sendAlert(AlertCloseNotify)
	return conn.conn.Close()
}

// handlePostHandshakeMsg dispatches a handshake-typed message received
// after the handshake has completed: NewSessionTicket or KeyUpdate are
// the only two this module handles.
func (conn *Connection) handlePostHandshakeMsg(data []byte) error {
	if len(data) < 4 {
		return conn.decodeErrorf("truncated post-handshake message")
	}
	ht := HandshakeType(data[0])
	length := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if length != len(data)-4 {
		return conn.decodeErrorf("post-handshake message length mismatch")
	}
	body := data[4:]

	switch ht {
	case HTNewSessionTicket:
		var nst NewSessionTicket
		n, err := UnmarshalFrom(body, &nst)
		if err != nil || n != len(body) {
			return conn.decodeErrorf("invalid new_session_ticket")
		}
		conn.incomingTickets = append(conn.incomingTickets, &nst)
		if conn.config.ClientTicketStore != nil {
			conn.config.ClientTicketStore.Put(conn.config.ServerName, conn.suite, &nst,
				conn.ks.resumptionMasterSecret, conn.now())
		}
		return nil

	case HTKeyUpdate:
		var ku KeyUpdate
		n, err := UnmarshalFrom(body, &ku)
		if err != nil || n != len(body) {
			return conn.decodeErrorf("invalid key_update")
		}
		return conn.handleKeyUpdate(ku.RequestUpdate)

	default:
		return conn.unexpectedMessagef("unexpected post-handshake message %v", ht)
	}
}

// handleKeyUpdate rotates the read traffic secret, and — if the peer
// requested it — also rotates and announces the write traffic secret
// (RFC 8446 §4.6.3).
func (conn *Connection) handleKeyUpdate(request KeyUpdateRequest) error {
	next := updateTrafficSecret(conn.suite, conn.readKeys.secret)
	keys, err := newDirectionKeys(conn.suite, next)
	if err != nil {
		return conn.internalErrorf("rotating read keys: %v", err)
	}
	conn.readKeys = keys

	if request == UpdateRequested {
		return conn.KeyUpdate(false)
	}
	return nil
}

// KeyUpdate rotates this side's write traffic secret and sends a
// key_update message announcing it (RFC 8446 §4.6.3). requestPeerUpdate
// asks the peer to reciprocate.
func (conn *Connection) KeyUpdate(requestPeerUpdate bool) error {
	req := UpdateNotRequested
	if requestPeerUpdate {
		req = UpdateRequested
	}
	body, err := Marshal(&KeyUpdate{RequestUpdate: req})
	if err != nil {
		return err
	}
	if err := conn.writePlainHandshakeMsg(HTKeyUpdate, body); err != nil {
		return err
	}

	next := updateTrafficSecret(conn.suite, conn.writeKeys.secret)
	keys, err := newDirectionKeys(conn.suite, next)
	if err != nil {
		return conn.internalErrorf("rotating write keys: %v", err)
	}
	conn.writeKeys = keys
	return nil
}

// writePlainHandshakeMsg writes a post-handshake message: framed like
// a handshake message but, unlike writeHandshakeMsg, not appended to
// the (already-finalized) transcript.
func (conn *Connection) writePlainHandshakeMsg(ht HandshakeType, body []byte) error {
	return conn.writeRecord(CTHandshake, rawHandshakeMsg(ht, body))
}

// ExportKeyingMaterial implements RFC 8446 §7.5's exporter interface
// over exporter_master_secret.
func (conn *Connection) ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error) {
	if conn.ks == nil || conn.ks.exporterMasterSecret == nil {
		return nil, fmt.Errorf("tls: exporter master secret not available")
	}
	h := conn.suite.Hash()()
	h.Write(context)
	contextHash := h.Sum(nil)

	derived := deriveSecret(conn.suite, conn.ks.exporterMasterSecret, label, emptyTranscriptHash(conn.suite))
	return hkdfExpandLabel(conn.suite, derived, "exporter", contextHash, length), nil
}

// randomBytes fills b with cryptographically secure random bytes.
func randomBytes(b []byte) error {
	_, err := rand.Read(b)
	return err
}
