//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// ticketAEADSuite is the fixed cipher suite used to seal the server's
// own opaque session tickets. It is independent of whatever suite a
// given connection negotiates, since a ticket must remain decryptable
// across connections that may pick different application suites.
const ticketAEADSuite = CipherTLSAes128GcmSha256

// ticketStateWire is the plaintext sealed inside NewSessionTicket.Ticket.
type ticketStateWire struct {
	CipherSuite      CipherSuite
	PSK              []byte `tls:"u8"`
	IssuedAt         uint64
	TicketAgeAdd     uint32
	MaxEarlyDataSize uint32
}

// TicketKey is the server's symmetric key for sealing/opening session
// tickets (RFC 8446 §4.6.1). Rotate it to invalidate outstanding
// tickets.
type TicketKey [16]byte

// mintTicket builds and seals a NewSessionTicket for the just-completed
// connection, per RFC 8446 §4.6.1. maxEarlyDataSize of 0 omits the
// early_data extension, disabling 0-RTT for the resulting ticket.
func (conn *Connection) mintTicket(key TicketKey, lifetime uint32, maxEarlyDataSize uint32) (*NewSessionTicket, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("tls: generating ticket nonce: %w", err)
	}
	var ageAddBuf [4]byte
	if _, err := rand.Read(ageAddBuf[:]); err != nil {
		return nil, fmt.Errorf("tls: generating ticket_age_add: %w", err)
	}
	ageAdd := bo.Uint32(ageAddBuf[:])

	psk := ticketPSK(conn.suite, conn.ks.resumptionMasterSecret, nonce)

	state := ticketStateWire{
		CipherSuite:      conn.suite,
		PSK:              psk,
		IssuedAt:         uint64(conn.now().Unix()),
		TicketAgeAdd:     ageAdd,
		MaxEarlyDataSize: maxEarlyDataSize,
	}
	plaintext, err := Marshal(&state)
	if err != nil {
		return nil, err
	}
	opaque, err := sealTicket(key, plaintext)
	if err != nil {
		return nil, err
	}

	nst := &NewSessionTicket{
		TicketLifetime: lifetime,
		TicketAgeAdd:   ageAdd,
		TicketNonce:    nonce,
		Ticket:         opaque,
	}
	if maxEarlyDataSize > 0 {
		ext, err := buildEarlyDataNST(maxEarlyDataSize)
		if err != nil {
			return nil, err
		}
		nst.Extensions = append(nst.Extensions, ext)
	}
	return nst, nil
}

// openTicket unseals an opaque Ticket blob presented by a resuming
// client and reports whether its obfuscated_ticket_age falls inside
// the ticket's lifetime window (RFC 8446 §4.2.11.1).
func (conn *Connection) openTicket(key TicketKey, opaque []byte, obfuscatedAge uint32, lifetime uint32) (psk []byte, maxEarlyDataSize uint32, ok bool) {
	plaintext, err := openTicket(key, opaque)
	if err != nil {
		return nil, 0, false
	}
	var state ticketStateWire
	n, err := UnmarshalFrom(plaintext, &state)
	if err != nil || n != len(plaintext) {
		return nil, 0, false
	}
	if state.CipherSuite != conn.suite {
		return nil, 0, false
	}

	realAge := uint32(conn.now().Unix()-int64(state.IssuedAt)) * 1000
	claimedAge := obfuscatedAge - state.TicketAgeAdd
	if claimedAge > realAge+1000 || realAge > lifetime*1000 {
		return nil, 0, false
	}

	return state.PSK, state.MaxEarlyDataSize, true
}

func sealTicket(key TicketKey, plaintext []byte) ([]byte, error) {
	aead, err := ticketAEADSuite.newAEAD(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

func openTicket(key TicketKey, opaque []byte) ([]byte, error) {
	if len(opaque) < nonceLen {
		return nil, fmt.Errorf("tls: ticket too short")
	}
	aead, err := ticketAEADSuite.newAEAD(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, opaque[:nonceLen], opaque[nonceLen:], nil)
}

// earlyDataReplayCache rejects a 0-RTT ClientHello that replays an
// already-consumed ticket. A ticket is good for one 0-RTT attempt
// within the cache's ttl: a claim is forgotten once ttl has passed,
// after which the same ticket can be claimed again. Later full (1-RTT)
// resumptions with the same ticket are unaffected since they do not
// carry early_data.
type earlyDataReplayCache struct {
	mu   sync.Mutex
	seen map[[32]byte]time.Time
	ttl  time.Duration
}

func newEarlyDataReplayCache(ttl time.Duration) *earlyDataReplayCache {
	return &earlyDataReplayCache{seen: make(map[[32]byte]time.Time), ttl: ttl}
}

// claim reports whether opaque is being used for 0-RTT for the first
// time; subsequent calls with the same ticket return false until ttl
// has passed since the first claim.
func (c *earlyDataReplayCache) claim(opaque []byte, now time.Time) bool {
	key := sha256.Sum256(opaque)

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, t := range c.seen {
		if now.Sub(t) > c.ttl {
			delete(c.seen, k)
		}
	}
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = now
	return true
}

// StoredTicket is one entry of a client's resumption ticket store.
type StoredTicket struct {
	Ticket           []byte
	CipherSuite      CipherSuite
	PSK              []byte
	ReceivedAt       time.Time
	TicketLifetime   uint32
	TicketAgeAdd     uint32
	MaxEarlyDataSize uint32
}

// obfuscatedAge computes the obfuscated_ticket_age to offer for this
// ticket at the current time (RFC 8446 §4.2.11.1).
func (t *StoredTicket) obfuscatedAge(now time.Time) uint32 {
	age := uint32(now.Sub(t.ReceivedAt).Milliseconds())
	return age + t.TicketAgeAdd
}

// ClientTicketStore caches at most one resumption ticket per
// hostname (one ticket per key; a new NewSessionTicket for a host
// replaces any prior one).
type ClientTicketStore struct {
	mu      sync.Mutex
	tickets map[string]*StoredTicket
}

// NewClientTicketStore creates an empty store.
func NewClientTicketStore() *ClientTicketStore {
	return &ClientTicketStore{tickets: make(map[string]*StoredTicket)}
}

// Put records the ticket received from host under the negotiated
// suite, deriving and caching its PSK from resumptionMasterSecret.
func (s *ClientTicketStore) Put(host string, suite CipherSuite, nst *NewSessionTicket, resumptionMasterSecret []byte, now time.Time) {
	psk := ticketPSK(suite, resumptionMasterSecret, nst.TicketNonce)

	var maxEarlyDataSize uint32
	for _, ext := range nst.Extensions {
		if ext.Type == ETEarlyData {
			if v, err := parseEarlyDataNST(ext.Data); err == nil {
				maxEarlyDataSize = v
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[host] = &StoredTicket{
		Ticket:           nst.Ticket,
		CipherSuite:      suite,
		PSK:              psk,
		ReceivedAt:       now,
		TicketLifetime:   nst.TicketLifetime,
		TicketAgeAdd:     nst.TicketAgeAdd,
		MaxEarlyDataSize: maxEarlyDataSize,
	}
}

// Get returns the cached ticket for host, if any and not yet expired.
func (s *ClientTicketStore) Get(host string, now time.Time) (*StoredTicket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[host]
	if !ok {
		return nil, false
	}
	if now.Sub(t.ReceivedAt) > time.Duration(t.TicketLifetime)*time.Second {
		delete(s.tickets, host)
		return nil, false
	}
	return t, true
}
