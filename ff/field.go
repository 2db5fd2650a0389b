//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package ff implements prime field arithmetic for secret shared
// values. Elements are canonical representatives in [0, p) and every
// operation reduces its result modulo the field prime.
package ff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/markkurossi/ipa"
)

// Element is a field element. Its value is meaningful only together
// with the Field it belongs to.
type Element uint64

// Field defines a prime field.
type Field struct {
	name  string
	prime uint64
	size  int
}

// Predefined fields.
var (
	Fp31         = newField("Fp31", 31, 1)
	Fp32BitPrime = newField("Fp32BitPrime", 4294967291, 4)
	Fp61BitPrime = newField("Fp61BitPrime", (1<<61)-1, 8)
)

// Fields lists the predefined fields.
var Fields = []*Field{Fp31, Fp32BitPrime, Fp61BitPrime}

func newField(name string, prime uint64, size int) *Field {
	if prime >= 1<<62 {
		panic("ff: prime too large")
	}
	return &Field{
		name:  name,
		prime: prime,
		size:  size,
	}
}

// ByName returns the predefined field by its name.
func ByName(name string) (*Field, error) {
	for _, f := range Fields {
		if f.name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("unknown field type '%s'", name)
}

func (f *Field) String() string {
	return f.name
}

// Name returns the field name.
func (f *Field) Name() string {
	return f.name
}

// Prime returns the field characteristic.
func (f *Field) Prime() uint64 {
	return f.prime
}

// Size returns the byte size of a serialized element.
func (f *Field) Size() int {
	return f.size
}

// New creates an element from v. The function returns an error if v
// is not in the field range.
func (f *Field) New(v uint64) (Element, error) {
	if v >= f.prime {
		return 0, ipa.Errorf(ipa.ErrField, "value %d out of range for %s",
			v, f.name)
	}
	return Element(v), nil
}

// Reduce reduces v modulo the field prime.
func (f *Field) Reduce(v uint64) Element {
	return Element(v % f.prime)
}

// Reduce128 reduces the 128-bit value hi:lo modulo the field prime.
func (f *Field) Reduce128(hi, lo uint64) Element {
	return Element(bits.Rem64(hi, lo, f.prime))
}

// Valid tests if the element is a canonical field element.
func (f *Field) Valid(a Element) bool {
	return uint64(a) < f.prime
}

// Add returns a+b.
func (f *Field) Add(a, b Element) Element {
	s := uint64(a) + uint64(b)
	if s >= f.prime {
		s -= f.prime
	}
	return Element(s)
}

// Sub returns a-b.
func (f *Field) Sub(a, b Element) Element {
	if a >= b {
		return a - b
	}
	return Element(uint64(a) + f.prime - uint64(b))
}

// Neg returns -a.
func (f *Field) Neg(a Element) Element {
	if a == 0 {
		return 0
	}
	return Element(f.prime - uint64(a))
}

// Mul returns a*b.
func (f *Field) Mul(a, b Element) Element {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	return Element(bits.Rem64(hi, lo, f.prime))
}

// Sum returns the sum of the elements.
func (f *Field) Sum(elements ...Element) Element {
	var result Element
	for _, e := range elements {
		result = f.Add(result, e)
	}
	return result
}

// Random returns a uniformly random element. The element is reduced
// from 128 random bits so its bias is below 2^-64.
func (f *Field) Random(r io.Reader) (Element, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return f.FromBytes(buf), nil
}

// FromBytes reduces 16 uniform bytes into a field element.
func (f *Field) FromBytes(buf [16]byte) Element {
	return f.Reduce128(binary.BigEndian.Uint64(buf[0:8]),
		binary.BigEndian.Uint64(buf[8:16]))
}

// Marshal encodes the element into buf in big-endian byte order. The
// buffer must have at least Size() bytes.
func (f *Field) Marshal(buf []byte, a Element) {
	v := uint64(a)
	for i := f.size - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}

// Bytes returns the encoded element.
func (f *Field) Bytes(a Element) []byte {
	buf := make([]byte, f.size)
	f.Marshal(buf, a)
	return buf
}

// Unmarshal decodes an element from buf. The function returns an
// ErrCommunication error if the buffer length is wrong and an
// ErrField error if the value is out of the field range.
func (f *Field) Unmarshal(buf []byte) (Element, error) {
	if len(buf) != f.size {
		return 0, ipa.Errorf(ipa.ErrCommunication,
			"invalid %s element length %d, expected %d",
			f.name, len(buf), f.size)
	}
	var v uint64
	for _, b := range buf {
		v <<= 8
		v |= uint64(b)
	}
	return f.New(v)
}
