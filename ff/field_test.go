//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package ff

import (
	"errors"
	"math/big"
	mrand "math/rand"
	"testing"

	"github.com/markkurossi/ipa"
)

func TestFp31Exhaustive(t *testing.T) {
	f := Fp31
	for a := uint64(0); a < 31; a++ {
		for b := uint64(0); b < 31; b++ {
			ea, eb := Element(a), Element(b)
			if v := f.Add(ea, eb); uint64(v) != (a+b)%31 {
				t.Errorf("%d+%d=%d", a, b, v)
			}
			if v := f.Sub(ea, eb); uint64(v) != (a+31-b)%31 {
				t.Errorf("%d-%d=%d", a, b, v)
			}
			if v := f.Mul(ea, eb); uint64(v) != (a*b)%31 {
				t.Errorf("%d*%d=%d", a, b, v)
			}
		}
		if v := f.Add(Element(a), f.Neg(Element(a))); v != 0 {
			t.Errorf("%d+(-%d)=%d", a, a, v)
		}
	}
}

func TestLargeFields(t *testing.T) {
	rnd := mrand.New(mrand.NewSource(42))

	for _, f := range []*Field{Fp32BitPrime, Fp61BitPrime} {
		p := new(big.Int).SetUint64(f.Prime())
		for i := 0; i < 1000; i++ {
			a := f.Reduce(rnd.Uint64())
			b := f.Reduce(rnd.Uint64())

			ba := new(big.Int).SetUint64(uint64(a))
			bb := new(big.Int).SetUint64(uint64(b))

			sum := new(big.Int).Add(ba, bb)
			sum.Mod(sum, p)
			if got := f.Add(a, b); uint64(got) != sum.Uint64() {
				t.Fatalf("%v: %d+%d=%d, expected %v", f, a, b, got, sum)
			}
			diff := new(big.Int).Sub(ba, bb)
			diff.Mod(diff, p)
			if got := f.Sub(a, b); uint64(got) != diff.Uint64() {
				t.Fatalf("%v: %d-%d=%d, expected %v", f, a, b, got, diff)
			}
			prod := new(big.Int).Mul(ba, bb)
			prod.Mod(prod, p)
			if got := f.Mul(a, b); uint64(got) != prod.Uint64() {
				t.Fatalf("%v: %d*%d=%d, expected %v", f, a, b, got, prod)
			}
		}
	}
}

func TestReduce(t *testing.T) {
	if v := Fp31.Reduce(42); v != 11 {
		t.Errorf("42 mod 31 = %d", v)
	}
	// 2^64 = 2^(5*12+4) and 2^5 = 1 (mod 31).
	if v := Fp31.Reduce128(1, 0); v != 16 {
		t.Errorf("2^64 mod 31 = %d", v)
	}
}

func TestNewOutOfRange(t *testing.T) {
	if _, err := Fp31.New(30); err != nil {
		t.Errorf("New(30): %v", err)
	}
	_, err := Fp31.New(31)
	if !errors.Is(err, ipa.ErrField) {
		t.Errorf("New(31): got %v, expected ErrField", err)
	}
}

func TestMarshal(t *testing.T) {
	for _, f := range Fields {
		v := f.Reduce(f.Prime() - 1)
		buf := f.Bytes(v)
		if len(buf) != f.Size() {
			t.Fatalf("%v: encoded length %d", f, len(buf))
		}
		got, err := f.Unmarshal(buf)
		if err != nil {
			t.Fatalf("%v: Unmarshal: %v", f, err)
		}
		if got != v {
			t.Errorf("%v: Unmarshal: got %d, expected %d", f, got, v)
		}
	}
	if _, err := Fp31.Unmarshal([]byte{31}); !errors.Is(err, ipa.ErrField) {
		t.Errorf("Unmarshal(31): got %v, expected ErrField", err)
	}
	if _, err := Fp31.Unmarshal([]byte{1, 2}); !errors.Is(err,
		ipa.ErrCommunication) {
		t.Errorf("Unmarshal(short): got %v, expected ErrCommunication", err)
	}
}

func TestByName(t *testing.T) {
	f, err := ByName("Fp32BitPrime")
	if err != nil {
		t.Fatal(err)
	}
	if f != Fp32BitPrime {
		t.Errorf("ByName returned %v", f)
	}
	if _, err := ByName("Fp7"); err == nil {
		t.Errorf("ByName(Fp7) succeeded")
	}
}
