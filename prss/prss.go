//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package prss implements pseudo-random secret sharing. Each pair of
// adjacent helpers shares a seed from which the helpers derive, for
// any gate and record, correlated values without communication: the
// right value of helper i equals the left value of helper i+1.
package prss

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/replicated"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// SeedSize is the size of the pair seed in bytes.
const SeedSize = 32

// Seed is a secret shared by two helpers.
type Seed [SeedSize]byte

func (s Seed) String() string {
	return hex.EncodeToString(s[:4]) + "..."
}

// NewSeed creates a random seed.
func NewSeed(r io.Reader) (Seed, error) {
	var s Seed
	_, err := io.ReadFull(r, s[:])
	return s, err
}

// KeyPair is an X25519 key used to agree on pair seeds.
type KeyPair struct {
	priv [curve25519.ScalarSize]byte
	pub  []byte
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair(r io.Reader) (*KeyPair, error) {
	kp := new(KeyPair)
	if _, err := io.ReadFull(r, kp.priv[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	kp.pub = pub
	return kp, nil
}

// Public returns the public key.
func (kp *KeyPair) Public() []byte {
	return kp.pub
}

// Seed derives the pair seed for the helpers a and b from the peer's
// public key. Both helpers derive the same seed regardless of the
// argument order.
func (kp *KeyPair) Seed(peer []byte, a, b ipa.Role) (Seed, error) {
	var seed Seed
	if len(peer) != curve25519.PointSize {
		return seed, ipa.Errorf(ipa.ErrCommunication,
			"invalid public key length %d", len(peer))
	}
	if a == b || !a.Valid() || !b.Valid() {
		return seed, fmt.Errorf("invalid helper pair %s-%s", a, b)
	}
	shared, err := curve25519.X25519(kp.priv[:], peer)
	if err != nil {
		return seed, ipa.Errorf(ipa.ErrCommunication, "key agreement: %v", err)
	}
	if b < a {
		a, b = b, a
	}
	info := fmt.Sprintf("ipa/prss/seed/%s-%s", a, b)
	_, err = io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(info)),
		seed[:])
	return seed, err
}

// Endpoint holds the helper's seeds shared with its left and right
// peers. The endpoint is immutable and can be shared by all queries
// over the same connections.
type Endpoint struct {
	left  Seed
	right Seed
}

// NewEndpoint creates a new endpoint with the left and right seeds.
func NewEndpoint(left, right Seed) *Endpoint {
	return &Endpoint{
		left:  left,
		right: right,
	}
}

// Indexed derives the PRSS instance for the gate. The gate argument
// is the gate's wire identity which is the same in all helpers.
func (e *Endpoint) Indexed(gate []byte) *Indexed {
	idx := new(Indexed)
	derive(e.left, gate, idx.left[:])
	derive(e.right, gate, idx.right[:])
	return idx
}

func derive(seed Seed, gate []byte, key []byte) {
	info := make([]byte, 0, 14+len(gate))
	info = append(info, "ipa/prss/gate/"...)
	info = append(info, gate...)

	// The expansion only fails if the output is longer than
	// 255*sha256.Size bytes.
	_, err := io.ReadFull(hkdf.Expand(sha256.New, seed[:], info), key)
	if err != nil {
		panic(err)
	}
}

// Indexed generates the PRSS values of one gate.
type Indexed struct {
	left  [chacha20.KeySize]byte
	right [chacha20.KeySize]byte
}

// Generate returns the left and right values for the record.
func (idx *Indexed) Generate(f *ff.Field, record ipa.RecordID) (
	left, right ff.Element) {

	return generate(f, idx.left[:], record), generate(f, idx.right[:], record)
}

// Zero returns the helper's share of a three-way sharing of zero for
// the record. The shares of the three helpers sum to zero.
func (idx *Indexed) Zero(f *ff.Field, record ipa.RecordID) ff.Element {
	l, r := idx.Generate(f, record)
	return f.Sub(l, r)
}

// Random returns the helper's replicated share of a random value for
// the record.
func (idx *Indexed) Random(f *ff.Field, record ipa.RecordID) replicated.Share {
	return replicated.New(idx.Generate(f, record))
}

func generate(f *ff.Field, key []byte, record ipa.RecordID) ff.Element {
	var nonce [chacha20.NonceSize]byte
	binary.BigEndian.PutUint32(nonce[8:], uint32(record))

	c, err := chacha20.NewUnauthenticatedCipher(key, nonce[:])
	if err != nil {
		panic(err)
	}
	var buf [16]byte
	c.XORKeyStream(buf[:], buf[:])
	return f.FromBytes(buf)
}

// Stream returns a deterministic pseudo-random byte stream for the
// seed. It is used for reproducible inputs and test randomness.
func Stream(seed Seed) io.Reader {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		panic(err)
	}
	return &stream{
		c: c,
	}
}

type stream struct {
	c *chacha20.Cipher
}

func (s *stream) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	s.c.XORKeyStream(p, p)
	return len(p), nil
}
