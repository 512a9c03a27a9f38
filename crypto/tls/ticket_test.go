//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestConnection(suite CipherSuite, now time.Time) *Connection {
	ks := newKeySchedule(suite)
	ks.resumptionMasterSecret = make([]byte, suite.HashSize())
	for i := range ks.resumptionMasterSecret {
		ks.resumptionMasterSecret[i] = byte(i + 7)
	}
	return &Connection{
		suite:  suite,
		ks:     ks,
		config: &Config{Now: func() time.Time { return now }},
	}
}

func TestMintAndOpenTicketRoundTrip(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	now := time.Unix(1_700_000_000, 0)
	conn := newTestConnection(suite, now)

	var key TicketKey
	for i := range key {
		key[i] = byte(i * 3)
	}

	nst, err := conn.mintTicket(key, 3600, 16384)
	require.NoError(t, err)
	require.NotEmpty(t, nst.Ticket)
	require.NotEmpty(t, nst.Extensions, "early_data extension must be present when maxEarlyDataSize > 0")

	opener := newTestConnection(suite, now.Add(10*time.Second))
	psk, maxEarly, ok := opener.openTicket(key, nst.Ticket, nst.TicketAgeAdd+10_000, 3600)
	require.True(t, ok)
	require.Equal(t, uint32(16384), maxEarly)

	expectedPSK := ticketPSK(suite, conn.ks.resumptionMasterSecret, nst.TicketNonce)
	require.Equal(t, expectedPSK, psk)
}

func TestOpenTicketRejectsWrongKey(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	now := time.Unix(1_700_000_000, 0)
	conn := newTestConnection(suite, now)

	var key, wrongKey TicketKey
	wrongKey[0] = 1

	nst, err := conn.mintTicket(key, 3600, 0)
	require.NoError(t, err)
	require.Empty(t, nst.Extensions, "early_data extension must be absent when 0-RTT is disabled")

	_, _, ok := conn.openTicket(wrongKey, nst.Ticket, nst.TicketAgeAdd, 3600)
	require.False(t, ok)
}

func TestOpenTicketRejectsExpiredLifetime(t *testing.T) {
	suite := CipherTLSAes128GcmSha256
	now := time.Unix(1_700_000_000, 0)
	conn := newTestConnection(suite, now)

	var key TicketKey
	nst, err := conn.mintTicket(key, 10, 0)
	require.NoError(t, err)

	later := newTestConnection(suite, now.Add(time.Hour))
	_, _, ok := later.openTicket(key, nst.Ticket, nst.TicketAgeAdd, 10)
	require.False(t, ok)
}

func TestEarlyDataReplayCacheSingleUse(t *testing.T) {
	cache := newEarlyDataReplayCache(time.Minute)
	opaque := []byte("ticket-blob")
	now := time.Now()

	require.True(t, cache.claim(opaque, now))
	require.False(t, cache.claim(opaque, now), "a ticket must not be claimable twice")
}

func TestClientTicketStorePutGet(t *testing.T) {
	store := NewClientTicketStore()
	suite := CipherTLSAes128GcmSha256
	now := time.Now()

	nst := &NewSessionTicket{
		TicketLifetime: 3600,
		TicketAgeAdd:   42,
		TicketNonce:    []byte{1, 2, 3},
		Ticket:         []byte("opaque"),
	}
	rms := make([]byte, suite.HashSize())
	store.Put("example.com", suite, nst, rms, now)

	got, ok := store.Get("example.com", now.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, ticketPSK(suite, rms, nst.TicketNonce), got.PSK)

	_, ok = store.Get("example.com", now.Add(2*time.Hour))
	require.False(t, ok, "ticket must expire after its lifetime elapses")
}
