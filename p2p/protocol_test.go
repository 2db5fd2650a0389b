//
// protocol_test.go
//
// Copyright (c) 2023-2026 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

var tests = []interface{}{
	byte(42),
	uint16(43),
	uint32(44),
	"Hello, world!",
	make([]byte, 1024),
	[]byte{},
	make([]byte, MaxDataSize),
	[16]byte{1, 2, 3, 4},
}

func writer(c *Conn) {
	for _, test := range tests {
		switch d := test.(type) {
		case byte:
			if err := c.SendByte(d); err != nil {
				fmt.Printf("SendByte: %v\n", err)
			}

		case uint16:
			if err := c.SendUint16(int(d)); err != nil {
				fmt.Printf("SendUint16: %v\n", err)
			}

		case uint32:
			if err := c.SendUint32(int(d)); err != nil {
				fmt.Printf("SendUint32: %v\n", err)
			}

		case string:
			if err := c.SendString(d); err != nil {
				fmt.Printf("SendString: %v\n", err)
			}

		case []byte:
			if err := c.SendData(d); err != nil {
				fmt.Printf("SendData [%v]byte: %v\n", len(d), err)
			}

		case [16]byte:
			if err := c.SendFixed(d[:]); err != nil {
				fmt.Printf("SendFixed: %v\n", err)
			}

		default:
			fmt.Printf("writer: invalid data: %v(%T)\n", test, test)
		}
	}
	if err := c.Flush(); err != nil {
		fmt.Printf("Flush: %v\n", err)
	}
}

func TestProtocol(t *testing.T) {
	cw, c := Pipe()

	go writer(cw)

	for _, test := range tests {
		switch d := test.(type) {
		case byte:
			v, err := c.ReceiveByte()
			if err != nil {
				t.Fatalf("ReceiveByte: %v", err)
			}
			if v != d {
				t.Errorf("ReceiveByte: got %v, expected %v", v, d)
			}

		case uint16:
			v, err := c.ReceiveUint16()
			if err != nil {
				t.Fatalf("ReceiveUint16: %v", err)
			}
			if v != int(d) {
				t.Errorf("ReceiveUint16: got %v, expected %v", v, d)
			}

		case uint32:
			v, err := c.ReceiveUint32()
			if err != nil {
				t.Fatalf("ReceiveUint32: %v", err)
			}
			if v != int(d) {
				t.Errorf("ReceiveUint32: got %v, expected %v", v, d)
			}

		case string:
			v, err := c.ReceiveString()
			if err != nil {
				t.Fatalf("ReceiveString: %v", err)
			}
			if v != d {
				t.Errorf("ReceiveString: got %v, expected %v", v, d)
			}

		case []byte:
			v, err := c.ReceiveData()
			if err != nil {
				t.Fatalf("ReceiveData: %v", err)
			}
			if len(v) != len(d) {
				t.Errorf("ReceiveData: got [%v]byte, expected [%v]byte",
					len(v), len(d))
			}

		case [16]byte:
			var v [16]byte
			if err := c.ReceiveFixed(v[:]); err != nil {
				t.Fatalf("ReceiveFixed: %v", err)
			}
			if v != d {
				t.Errorf("ReceiveFixed: got %x, expected %x", v, d)
			}

		default:
			t.Errorf("invalid value: %v(%T)", test, test)
		}
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDataTooLong(t *testing.T) {
	c, _ := Pipe()
	if err := c.SendData(make([]byte, MaxDataSize+1)); err == nil {
		t.Errorf("SendData accepted %d bytes", MaxDataSize+1)
	}
}

func TestDrop(t *testing.T) {
	c0, c1 := Pipe()

	result := make(chan error)
	go func() {
		_, err := c0.ReceiveByte()
		result <- err
	}()
	go func() {
		_, err := c1.ReceiveByte()
		result <- err
	}()

	if err := c0.Drop(); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-result:
			if err == nil {
				t.Errorf("receive succeeded after drop")
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("receive not released by drop")
		}
	}
	if !c0.Dropped() {
		t.Errorf("Dropped() returned false")
	}
	if err := c0.SendByte(1); err != nil {
		t.Fatalf("SendByte: %v", err)
	}
	if err := c0.Flush(); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Flush after drop: %v", err)
	}
	if err := c0.Close(); err != nil {
		t.Errorf("Close after drop: %v", err)
	}
}

func TestStats(t *testing.T) {
	c0, c1 := Pipe()

	msg := []byte("Hello, world!")
	if err := c0.SendData(msg); err != nil {
		t.Fatal(err)
	}
	if err := c0.Flush(); err != nil {
		t.Fatal(err)
	}
	data, err := c1.ReceiveData()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, msg) {
		t.Errorf("got %q, expected %q", data, msg)
	}
	sum := c0.Stats.Add(c1.Stats)
	expected := uint64(2 * (4 + len(msg)))
	if sum.Sum() != expected {
		t.Errorf("Sum()=%d, expected %d", sum.Sum(), expected)
	}
	if sum.Flushed.Load() != 1 {
		t.Errorf("Flushed=%d, expected 1", sum.Flushed.Load())
	}
}
