//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

// keyShareKeys holds the private half of a key_share offer, kept
// around only until the matching peer share arrives and the shared
// secret can be computed.
type keyShareKeys struct {
	group   NamedGroup
	private *ecdh.PrivateKey
}

// curveFor returns the crypto/ecdh.Curve for a supported NamedGroup.
// secp256r1 and x25519 are the only two groups this module allows;
// both are exposed by the standard library's constant-time ecdh.Curve
// abstraction.
func curveFor(group NamedGroup) (ecdh.Curve, error) {
	switch group {
	case GroupX25519:
		return ecdh.X25519(), nil
	case GroupSecp256r1:
		return ecdh.P256(), nil
	default:
		return nil, fmt.Errorf("tls: unsupported group %v", group)
	}
}

// generateKeyShare creates a fresh ephemeral key pair for group and
// returns the entry to advertise on the wire plus the retained
// private state.
func generateKeyShare(group NamedGroup) (*KeyShareEntry, *keyShareKeys, error) {
	curve, err := curveFor(group)
	if err != nil {
		return nil, nil, err
	}
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("tls: generating %v key share: %w", group, err)
	}
	entry := &KeyShareEntry{
		Group:       group,
		KeyExchange: priv.PublicKey().Bytes(),
	}
	return entry, &keyShareKeys{group: group, private: priv}, nil
}

// agree computes the ECDH shared secret with a peer's public key
// bytes for the group this keyShareKeys was generated for. For
// secp256r1 the result is the big-endian X coordinate as returned by
// crypto/ecdh, left-zero-padded to the curve's field width, exactly
// as RFC 8446 §4.2.8.2 requires.
func (k *keyShareKeys) agree(peerPub []byte) ([]byte, error) {
	curve, err := curveFor(k.group)
	if err != nil {
		return nil, err
	}
	pub, err := curve.NewPublicKey(peerPub)
	if err != nil {
		return nil, fmt.Errorf("tls: invalid %v public key: %w", k.group, err)
	}
	secret, err := k.private.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("tls: %v ECDH failed: %w", k.group, err)
	}
	return secret, nil
}

// defaultGroupPreference is the server's key_share selection order:
// the first group here present in both the client's supported_groups
// and its key_share offers is chosen; otherwise a HelloRetryRequest
// names the first mutually supported_groups entry.
var defaultGroupPreference = []NamedGroup{GroupX25519, GroupSecp256r1}
