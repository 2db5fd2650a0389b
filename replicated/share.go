//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package replicated implements 2-out-of-3 replicated additive secret
// sharing. A value x is split into x = x1 + x2 + x3 and helper Hi
// holds the pair (xi, xi+1). Any two helpers can reconstruct x but a
// single helper learns nothing about it.
package replicated

import (
	"fmt"
	"io"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
)

// Share is one helper's replicated share.
type Share struct {
	Left  ff.Element
	Right ff.Element
}

// New creates a share from its components.
func New(left, right ff.Element) Share {
	return Share{
		Left:  left,
		Right: right,
	}
}

func (s Share) String() string {
	return fmt.Sprintf("(%d,%d)", s.Left, s.Right)
}

// Add returns a+b.
func Add(f *ff.Field, a, b Share) Share {
	return Share{
		Left:  f.Add(a.Left, b.Left),
		Right: f.Add(a.Right, b.Right),
	}
}

// Sub returns a-b.
func Sub(f *ff.Field, a, b Share) Share {
	return Share{
		Left:  f.Sub(a.Left, b.Left),
		Right: f.Sub(a.Right, b.Right),
	}
}

// Neg returns -a.
func Neg(f *ff.Field, a Share) Share {
	return Share{
		Left:  f.Neg(a.Left),
		Right: f.Neg(a.Right),
	}
}

// MulConst multiplies the share with the public constant c.
func MulConst(f *ff.Field, a Share, c ff.Element) Share {
	return Share{
		Left:  f.Mul(a.Left, c),
		Right: f.Mul(a.Right, c),
	}
}

// AddConst adds the public constant c to the shared value. The
// constant is added to the component x1 which is held by H1 (left)
// and H3 (right).
func AddConst(f *ff.Field, role ipa.Role, a Share, c ff.Element) Share {
	return Add(f, a, ShareKnown(f, role, c))
}

// ShareKnown returns role's share of the public value v.
func ShareKnown(f *ff.Field, role ipa.Role, v ff.Element) Share {
	switch role {
	case ipa.H1:
		return Share{Left: v}
	case ipa.H3:
		return Share{Right: v}
	default:
		return Share{}
	}
}

// Split secret shares v into three replicated shares, indexed by the
// helper ring index.
func Split(f *ff.Field, v ff.Element, rand io.Reader) ([ipa.NumHelpers]Share,
	error) {

	x1, err := f.Random(rand)
	if err != nil {
		return [ipa.NumHelpers]Share{}, err
	}
	x2, err := f.Random(rand)
	if err != nil {
		return [ipa.NumHelpers]Share{}, err
	}
	x3 := f.Sub(v, f.Add(x1, x2))

	return [ipa.NumHelpers]Share{
		New(x1, x2),
		New(x2, x3),
		New(x3, x1),
	}, nil
}

// Reconstruct validates the three shares and returns the shared
// value. The shares are indexed by the helper ring index.
func Reconstruct(f *ff.Field, shares [ipa.NumHelpers]Share) (ff.Element,
	error) {

	for i := 0; i < ipa.NumHelpers; i++ {
		s := shares[i]
		if !f.Valid(s.Left) || !f.Valid(s.Right) {
			return 0, ipa.Errorf(ipa.ErrField, "share %v of %v out of range",
				s, ipa.RoleAt(i))
		}
		next := shares[(i+1)%ipa.NumHelpers]
		if s.Right != next.Left {
			return 0, ipa.Errorf(ipa.ErrField,
				"inconsistent shares: %v.right=%d, %v.left=%d",
				ipa.RoleAt(i), s.Right, ipa.RoleAt(i+1), next.Left)
		}
	}
	return f.Sum(shares[0].Left, shares[1].Left, shares[2].Left), nil
}

// ReconstructPair reconstructs the shared value from the shares of
// two different helpers.
func ReconstructPair(f *ff.Field, ra ipa.Role, a Share, rb ipa.Role,
	b Share) (ff.Element, error) {

	if !ra.Valid() || !rb.Valid() || ra == rb {
		return 0, ipa.Errorf(ipa.ErrField,
			"reconstruct requires two different helpers: %v, %v", ra, rb)
	}
	// Order the pair so that b is the right peer of a.
	if ra.Right() != rb {
		ra, a, rb, b = rb, b, ra, a
	}
	return f.Sum(a.Left, a.Right, b.Right), nil
}

// Size returns the byte size of a serialized share.
func Size(f *ff.Field) int {
	return 2 * f.Size()
}

// Marshal encodes the share into buf.
func Marshal(f *ff.Field, buf []byte, s Share) {
	f.Marshal(buf, s.Left)
	f.Marshal(buf[f.Size():], s.Right)
}

// Unmarshal decodes a share from buf.
func Unmarshal(f *ff.Field, buf []byte) (Share, error) {
	if len(buf) != Size(f) {
		return Share{}, ipa.Errorf(ipa.ErrCommunication,
			"invalid share length %d, expected %d", len(buf), Size(f))
	}
	left, err := f.Unmarshal(buf[:f.Size()])
	if err != nil {
		return Share{}, err
	}
	right, err := f.Unmarshal(buf[f.Size():])
	if err != nil {
		return Share{}, err
	}
	return New(left, right), nil
}
