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

func TestSupportedVersionsRoundTrip(t *testing.T) {
	ext, err := buildSupportedVersionsCH([]ProtocolVersion{VersionTLS13, VersionTLS12})
	require.NoError(t, err)
	versions, err := parseSupportedVersionsCH(ext.Data)
	require.NoError(t, err)
	require.Equal(t, []ProtocolVersion{VersionTLS13, VersionTLS12}, versions)

	sh := buildSupportedVersionsSH(VersionTLS13)
	v, err := parseSupportedVersionsSH(sh.Data)
	require.NoError(t, err)
	require.Equal(t, VersionTLS13, v)
}

func TestKeyShareRoundTrips(t *testing.T) {
	entries := []KeyShareEntry{
		{Group: GroupX25519, KeyExchange: []byte{1, 2, 3}},
		{Group: GroupSecp256r1, KeyExchange: []byte{4, 5, 6, 7}},
	}
	ext, err := buildKeyShareCH(entries)
	require.NoError(t, err)
	got, err := parseKeyShareCH(ext.Data)
	require.NoError(t, err)
	require.Equal(t, entries, got)

	sh, err := buildKeyShareSH(entries[0])
	require.NoError(t, err)
	entry, err := parseKeyShareSH(sh.Data)
	require.NoError(t, err)
	require.Equal(t, entries[0], entry)

	hrr := buildKeyShareHRR(GroupSecp256r1)
	group, err := parseKeyShareHRR(hrr.Data)
	require.NoError(t, err)
	require.Equal(t, GroupSecp256r1, group)
}

func TestPreSharedKeyRoundTrips(t *testing.T) {
	ch := &PreSharedKeyExtensionClient{
		Identities: []PskIdentity{{Identity: []byte("ticket-1"), ObfuscatedTicketAge: 1234}},
		Binders:    [][]byte{make([]byte, 32)},
	}
	ext, err := buildPreSharedKeyCH(ch)
	require.NoError(t, err)
	got, err := parsePreSharedKeyCH(ext.Data)
	require.NoError(t, err)
	require.Equal(t, ch.Identities, got.Identities)
	require.Equal(t, ch.Binders, got.Binders)

	sh, err := buildPreSharedKeySH(3)
	require.NoError(t, err)
	idx, err := parsePreSharedKeySH(sh.Data)
	require.NoError(t, err)
	require.Equal(t, uint16(3), idx)
}

func TestServerNameRoundTrip(t *testing.T) {
	ext, err := buildServerName("example.com")
	require.NoError(t, err)
	name, err := parseServerName(ext.Data)
	require.NoError(t, err)
	require.Equal(t, "example.com", name)
}

func TestEarlyDataNSTRoundTrip(t *testing.T) {
	ext, err := buildEarlyDataNST(16384)
	require.NoError(t, err)
	size, err := parseEarlyDataNST(ext.Data)
	require.NoError(t, err)
	require.Equal(t, uint32(16384), size)

	empty := buildEarlyDataEmpty()
	require.Empty(t, empty.Data)
}

func TestCookieRoundTrip(t *testing.T) {
	ext, err := buildCookie([]byte("opaque-server-state"))
	require.NoError(t, err)
	cookie, err := parseCookie(ext.Data)
	require.NoError(t, err)
	require.Equal(t, []byte("opaque-server-state"), cookie)
}

func TestPSKBinderFieldLen(t *testing.T) {
	require.Equal(t, 32+3, pskBinderFieldLen(32))
	require.Equal(t, 48+3, pskBinderFieldLen(48))
}

func TestCheckNoDuplicateExtensions(t *testing.T) {
	ok := []Extension{{Type: ETServerName}, {Type: ETKeyShare}}
	require.NoError(t, checkNoDuplicateExtensions(ok))

	dup := []Extension{{Type: ETServerName}, {Type: ETServerName}}
	require.Error(t, checkNoDuplicateExtensions(dup))
}

func TestCheckPSKIsLast(t *testing.T) {
	ok := []Extension{{Type: ETServerName}, {Type: ETPreSharedKey}}
	require.NoError(t, checkPSKIsLast(ok))

	bad := []Extension{{Type: ETPreSharedKey}, {Type: ETServerName}}
	require.Error(t, checkPSKIsLast(bad))
}

func TestALPNParseOnly(t *testing.T) {
	data, err := Marshal(&alpnList{Protocols: [][]byte{[]byte("h2"), []byte("http/1.1")}})
	require.NoError(t, err)
	protos, err := parseALPN(data)
	require.NoError(t, err)
	require.Equal(t, []string{"h2", "http/1.1"}, protos)
}
