//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/chacha20poly1305"
)

// nonceLen is the AEAD nonce length mandated by RFC 8446 §5.3 for
// all three supported cipher suites.
const nonceLen = 12

type suiteParams struct {
	newHash  func() hash.Hash
	hashSize int
	keyLen   int
	newAEAD  func(key []byte) (cipher.AEAD, error)
}

var suites = map[CipherSuite]suiteParams{
	CipherTLSAes128GcmSha256: {
		newHash:  sha256.New,
		hashSize: sha256.Size,
		keyLen:   16,
		newAEAD:  newAESGCM,
	},
	CipherTLSAes256GcmSha384: {
		newHash:  sha512.New384,
		hashSize: sha512.Size384,
		keyLen:   32,
		newAEAD:  newAESGCM,
	},
	CipherTLSChacha20Poly1305Sha256: {
		newHash:  sha256.New,
		hashSize: sha256.Size,
		keyLen:   chacha20poly1305.KeySize,
		newAEAD:  chacha20poly1305.New,
	},
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Hash returns the transcript-hash constructor for the cipher suite.
func (cs CipherSuite) Hash() func() hash.Hash {
	p, ok := suites[cs]
	if !ok {
		return nil
	}
	return p.newHash
}

// HashSize returns the transcript-hash output size for the cipher suite.
func (cs CipherSuite) HashSize() int {
	p, ok := suites[cs]
	if !ok {
		return 0
	}
	return p.hashSize
}

// KeyLen returns the AEAD key length for the cipher suite.
func (cs CipherSuite) KeyLen() int {
	p, ok := suites[cs]
	if !ok {
		return 0
	}
	return p.keyLen
}

// Supported reports whether cs is one of the three suites this
// module implements.
func (cs CipherSuite) Supported() bool {
	_, ok := suites[cs]
	return ok
}

func (cs CipherSuite) newAEAD(key []byte) (cipher.AEAD, error) {
	p, ok := suites[cs]
	if !ok {
		return nil, fmt.Errorf("tls: unsupported cipher suite %v", cs)
	}
	if len(key) != p.keyLen {
		return nil, fmt.Errorf("tls: %v: bad key length %d, want %d", cs, len(key), p.keyLen)
	}
	return p.newAEAD(key)
}

// directionKeys holds one direction's (read or write) traffic state:
// the AEAD instance, its fixed IV, and the running sequence number.
// The traffic secret itself is retained so KeyUpdate can derive the
// next generation without the caller re-deriving it from scratch.
type directionKeys struct {
	suite  CipherSuite
	secret []byte
	aead   cipher.AEAD
	iv     []byte
	seq    uint64
}

func newDirectionKeys(suite CipherSuite, secret []byte) (*directionKeys, error) {
	key := hkdfExpandLabel(suite, secret, "key", nil, suite.KeyLen())
	iv := hkdfExpandLabel(suite, secret, "iv", nil, nonceLen)
	aead, err := suite.newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &directionKeys{suite: suite, secret: secret, aead: aead, iv: iv}, nil
}

// nonce computes the per-record nonce: the IV XORed with the
// big-endian sequence number, right-aligned (RFC 8446 §5.3).
func (d *directionKeys) nonce() []byte {
	n := make([]byte, len(d.iv))
	copy(n, d.iv)
	for i := 0; i < 8; i++ {
		n[len(n)-1-i] ^= byte(d.seq >> (8 * uint(i)))
	}
	return n
}

// seal protects an inner-plaintext record (content plus its trailing
// content-type/padding byte) under the current sequence number, then
// advances it. aad is the five-byte outer record header.
func (d *directionKeys) seal(aad, plaintext []byte) ([]byte, error) {
	if d.seq == ^uint64(0) {
		return nil, fmt.Errorf("tls: sequence number exhausted, key_update required")
	}
	out := d.aead.Seal(nil, d.nonce(), plaintext, aad)
	d.seq++
	return out, nil
}

// open authenticates and decrypts a ciphertext record, advancing the
// sequence number only on success — a failed record never consumes a
// sequence slot, because the connection fails irrecoverably anyway.
func (d *directionKeys) open(aad, ciphertext []byte) ([]byte, error) {
	out, err := d.aead.Open(nil, d.nonce(), ciphertext, aad)
	if err != nil {
		return nil, DecryptError{Inner: err}
	}
	d.seq++
	return out, nil
}

// DecryptError wraps an AEAD authentication failure; the record
// layer always maps it to a fatal bad_record_mac alert.
type DecryptError struct {
	Inner error
}

func (e DecryptError) Error() string { return "tls: AEAD decryption failed" }
func (e DecryptError) Unwrap() error { return e.Inner }
