//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import "fmt"

// Extension bodies are polymorphic in the containing message: the
// same ExtensionType decodes differently in ClientHello,
// ServerHello/HelloRetryRequest, EncryptedExtensions, and
// NewSessionTicket. Each helper below is named for exactly one
// (message, extension) pair; callers always know which context they
// are in and must not decode generically.

type supportedVersionsCH struct {
	Versions []ProtocolVersion `tls:"u8"`
}

func newExtension(t ExtensionType, data []byte) Extension {
	return Extension{Type: t, Data: data}
}

func buildSupportedVersionsCH(versions []ProtocolVersion) (Extension, error) {
	data, err := Marshal(&supportedVersionsCH{Versions: versions})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETSupportedVersions, data), nil
}

func parseSupportedVersionsCH(data []byte) ([]ProtocolVersion, error) {
	var v supportedVersionsCH
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.Versions, nil
}

func buildSupportedVersionsSH(version ProtocolVersion) Extension {
	return newExtension(ETSupportedVersions, version.Bytes())
}

func parseSupportedVersionsSH(data []byte) (ProtocolVersion, error) {
	if len(data) != 2 {
		return 0, fmt.Errorf("tls: supported_versions (server form): bad length %d", len(data))
	}
	return ProtocolVersion(bo.Uint16(data)), nil
}

type namedGroupList struct {
	Groups []NamedGroup `tls:"u16"`
}

func buildSupportedGroups(groups []NamedGroup) (Extension, error) {
	data, err := Marshal(&namedGroupList{Groups: groups})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETSupportedGroups, data), nil
}

func parseSupportedGroups(data []byte) ([]NamedGroup, error) {
	var v namedGroupList
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.Groups, nil
}

type keyShareListCH struct {
	Shares []KeyShareEntry `tls:"u16"`
}

func buildKeyShareCH(entries []KeyShareEntry) (Extension, error) {
	data, err := Marshal(&keyShareListCH{Shares: entries})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETKeyShare, data), nil
}

func parseKeyShareCH(data []byte) ([]KeyShareEntry, error) {
	var v keyShareListCH
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.Shares, nil
}

func buildKeyShareSH(entry KeyShareEntry) (Extension, error) {
	data, err := Marshal(&entry)
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETKeyShare, data), nil
}

func parseKeyShareSH(data []byte) (KeyShareEntry, error) {
	var entry KeyShareEntry
	n, err := UnmarshalFrom(data, &entry)
	if err != nil {
		return entry, err
	}
	if n != len(data) {
		return entry, NotAllDecoded{Remaining: len(data) - n}
	}
	return entry, nil
}

// buildKeyShareHRR builds the key_share extension's HelloRetryRequest
// form: the selected group alone (RFC 8446 §4.1.4), no key_exchange.
func buildKeyShareHRR(group NamedGroup) Extension {
	return newExtension(ETKeyShare, group.Bytes())
}

func parseKeyShareHRR(data []byte) (NamedGroup, error) {
	if len(data) != 2 {
		return 0, fmt.Errorf("tls: key_share (HRR form): bad length %d", len(data))
	}
	return NamedGroup(bo.Uint16(data)), nil
}

type signatureSchemeList struct {
	Schemes []SignatureScheme `tls:"u16"`
}

func buildSignatureAlgorithms(schemes []SignatureScheme) (Extension, error) {
	data, err := Marshal(&signatureSchemeList{Schemes: schemes})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETSignatureAlgorithms, data), nil
}

func parseSignatureAlgorithms(data []byte) ([]SignatureScheme, error) {
	var v signatureSchemeList
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.Schemes, nil
}

type pskKeyExchangeModeList struct {
	Modes []PSKKeyExchangeMode `tls:"u8"`
}

func buildPSKKeyExchangeModes(modes []PSKKeyExchangeMode) (Extension, error) {
	data, err := Marshal(&pskKeyExchangeModeList{Modes: modes})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETPSKKeyExchangeModes, data), nil
}

func parsePSKKeyExchangeModes(data []byte) ([]PSKKeyExchangeMode, error) {
	var v pskKeyExchangeModeList
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.Modes, nil
}

func buildPreSharedKeyCH(ext *PreSharedKeyExtensionClient) (Extension, error) {
	data, err := Marshal(ext)
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETPreSharedKey, data), nil
}

// pskBinderFieldLen returns the wire length of a PreSharedKeyExtensionClient
// Binders field (tag "u16,u8") holding a single n-byte binder: a 2-byte
// outer vector length, a 1-byte per-entry length, and the n binder bytes
// themselves. This module's ClientHello always carries exactly one PSK
// identity, so this is the exact trailing length that must be stripped
// to recover ClientHelloWithoutBinders per RFC 8446 §4.2.11.2.
func pskBinderFieldLen(n int) int {
	return n + 3
}

func parsePreSharedKeyCH(data []byte) (*PreSharedKeyExtensionClient, error) {
	var v PreSharedKeyExtensionClient
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, NotAllDecoded{Remaining: len(data) - n}
	}
	return &v, nil
}

func buildPreSharedKeySH(selectedIdentity uint16) (Extension, error) {
	data, err := Marshal(&PreSharedKeyExtensionServer{SelectedIdentity: selectedIdentity})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETPreSharedKey, data), nil
}

func parsePreSharedKeySH(data []byte) (uint16, error) {
	var v PreSharedKeyExtensionServer
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return 0, err
	}
	if n != len(data) {
		return 0, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.SelectedIdentity, nil
}

type serverNameEntry struct {
	NameType uint8
	HostName []byte `tls:"u16"`
}

type serverNameList struct {
	Names []serverNameEntry `tls:"u16"`
}

// serverNameTypeHostName is the only server_name NameType defined by
// RFC 6066.
const serverNameTypeHostName = 0

func buildServerName(hostname string) (Extension, error) {
	data, err := Marshal(&serverNameList{
		Names: []serverNameEntry{{
			NameType: serverNameTypeHostName,
			HostName: []byte(hostname),
		}},
	})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETServerName, data), nil
}

func parseServerName(data []byte) (string, error) {
	var v serverNameList
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return "", err
	}
	if n != len(data) {
		return "", NotAllDecoded{Remaining: len(data) - n}
	}
	for _, entry := range v.Names {
		if entry.NameType == serverNameTypeHostName {
			return string(entry.HostName), nil
		}
	}
	return "", fmt.Errorf("tls: server_name: no host_name entry")
}

type recordSizeLimitExt struct {
	Limit uint16
}

func buildRecordSizeLimit(limit uint16) (Extension, error) {
	data, err := Marshal(&recordSizeLimitExt{Limit: limit})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETRecordSizeLimit, data), nil
}

func parseRecordSizeLimit(data []byte) (uint16, error) {
	var v recordSizeLimitExt
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return 0, err
	}
	if n != len(data) {
		return 0, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.Limit, nil
}

// buildEarlyDataEmpty builds the early_data extension's ClientHello
// and EncryptedExtensions forms, both of which carry an empty body
// (RFC 8446 §4.2.10).
func buildEarlyDataEmpty() Extension {
	return newExtension(ETEarlyData, nil)
}

type earlyDataIndicationNST struct {
	MaxEarlyDataSize uint32
}

func buildEarlyDataNST(maxEarlyDataSize uint32) (Extension, error) {
	data, err := Marshal(&earlyDataIndicationNST{MaxEarlyDataSize: maxEarlyDataSize})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETEarlyData, data), nil
}

func parseEarlyDataNST(data []byte) (uint32, error) {
	var v earlyDataIndicationNST
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return 0, err
	}
	if n != len(data) {
		return 0, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.MaxEarlyDataSize, nil
}

func buildCookie(cookie []byte) (Extension, error) {
	data, err := Marshal(&cookieExt{Cookie: cookie})
	if err != nil {
		return Extension{}, err
	}
	return newExtension(ETCookie, data), nil
}

type cookieExt struct {
	Cookie []byte `tls:"u16"`
}

func parseCookie(data []byte) ([]byte, error) {
	var v cookieExt
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, NotAllDecoded{Remaining: len(data) - n}
	}
	return v.Cookie, nil
}

type alpnList struct {
	Protocols [][]byte `tls:"u16,u8"`
}

// parseALPN decodes the application_layer_protocol_negotiation
// extension's protocol list. The handshake code does not call it: an
// ALPN extension in a ClientHello is ignored, and none is sent.
func parseALPN(data []byte) ([]string, error) {
	var v alpnList
	n, err := UnmarshalFrom(data, &v)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, NotAllDecoded{Remaining: len(data) - n}
	}
	protos := make([]string, len(v.Protocols))
	for i, p := range v.Protocols {
		protos[i] = string(p)
	}
	return protos, nil
}

// checkNoDuplicateExtensions enforces RFC 8446 §4.1.2: duplicate
// extensions of the same type in one message are fatal.
func checkNoDuplicateExtensions(exts []Extension) error {
	seen := make(map[ExtensionType]bool, len(exts))
	for _, e := range exts {
		if seen[e.Type] {
			return fmt.Errorf("tls: duplicate extension %v", e.Type)
		}
		seen[e.Type] = true
	}
	return nil
}

// checkPSKIsLast enforces RFC 8446 §4.2.11: in a ClientHello,
// pre_shared_key MUST be the last extension.
func checkPSKIsLast(exts []Extension) error {
	for i, e := range exts {
		if e.Type == ETPreSharedKey && i != len(exts)-1 {
			return fmt.Errorf("tls: pre_shared_key extension is not last")
		}
	}
	return nil
}
