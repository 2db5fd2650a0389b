//
// Copyright (c) 2019-2026 Markku Rossi
//
// All rights reserved.
//

// Package p2p implements buffered framed connections between helpers.
package p2p

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

const (
	numBuffers   = 3
	writeBufSize = 64 * 1024
	readBufSize  = 1024 * 1024
)

// MaxDataSize is the maximum length of a binary data value.
const MaxDataSize = writeBufSize - 4

// Conn implements a protocol connection. The send functions must be
// called from one goroutine and the receive functions from one
// goroutine. Drop can be called from any goroutine.
type Conn struct {
	conn      io.ReadWriter
	WriteBuf  []byte
	WritePos  int
	ReadBuf   []byte
	ReadStart int
	ReadEnd   int
	Stats     IOStats

	fromWriter chan []byte
	toWriter   chan []byte

	m         sync.Mutex
	writerErr error
	dropped   atomic.Bool
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// IOStats implements I/O statistics.
type IOStats struct {
	Sent    *atomic.Uint64
	Recvd   *atomic.Uint64
	Flushed *atomic.Uint64
}

// NewIOStats creates a new I/O statistics object.
func NewIOStats() IOStats {
	return IOStats{
		Sent:    new(atomic.Uint64),
		Recvd:   new(atomic.Uint64),
		Flushed: new(atomic.Uint64),
	}
}

// Add adds the argument stats to this IOStats and returns the sum.
func (stats IOStats) Add(o IOStats) IOStats {
	result := NewIOStats()
	result.Sent.Store(stats.Sent.Load() + o.Sent.Load())
	result.Recvd.Store(stats.Recvd.Load() + o.Recvd.Load())
	result.Flushed.Store(stats.Flushed.Load() + o.Flushed.Load())
	return result
}

// Sum returns sum of sent and received bytes.
func (stats IOStats) Sum() uint64 {
	return stats.Sent.Load() + stats.Recvd.Load()
}

func (stats IOStats) String() string {
	return fmt.Sprintf("sent=%d, recvd=%d, flushed=%d",
		stats.Sent.Load(), stats.Recvd.Load(), stats.Flushed.Load())
}

// NewConn creates a new connection around the argument connection.
func NewConn(conn io.ReadWriter) *Conn {
	c := &Conn{
		conn:       conn,
		ReadBuf:    make([]byte, readBufSize),
		fromWriter: make(chan []byte, numBuffers),
		toWriter:   make(chan []byte, numBuffers),
		Stats:      NewIOStats(),
	}

	go c.writer()

	c.WriteBuf = <-c.fromWriter

	return c
}

func (c *Conn) writer() {
	for i := 0; i < numBuffers; i++ {
		c.fromWriter <- make([]byte, writeBufSize)
	}

	for buf := range c.toWriter {
		if c.err() == nil {
			_, err := c.conn.Write(buf)
			if err != nil {
				c.setErr(err)
			}
		}
		c.fromWriter <- buf[0:cap(buf)]
	}
	close(c.fromWriter)
}

func (c *Conn) err() error {
	c.m.Lock()
	defer c.m.Unlock()
	return c.writerErr
}

func (c *Conn) setErr(err error) {
	c.m.Lock()
	if c.writerErr == nil {
		c.writerErr = err
	}
	c.m.Unlock()
}

// NeedSpace ensures the write buffer has space for count bytes. The
// function flushes the output if needed.
func (c *Conn) NeedSpace(count int) error {
	if c.WritePos+count > len(c.WriteBuf) {
		return c.Flush()
	}
	return nil
}

// Flush flushed any pending data in the connection.
func (c *Conn) Flush() error {
	if c.WritePos > 0 {
		c.Stats.Sent.Add(uint64(c.WritePos))
		c.toWriter <- c.WriteBuf[0:c.WritePos]

		c.WriteBuf = <-c.fromWriter
		c.WritePos = 0
		c.Stats.Flushed.Add(1)
	}
	return c.err()
}

// Fill fills the input buffer from the connection. Any unused data in
// the buffer is moved to the beginning of the buffer.
func (c *Conn) Fill(n int) error {
	if n > len(c.ReadBuf) {
		return fmt.Errorf("p2p: read of %d bytes exceeds buffer size %d",
			n, len(c.ReadBuf))
	}
	if c.ReadStart < c.ReadEnd {
		copy(c.ReadBuf[0:], c.ReadBuf[c.ReadStart:c.ReadEnd])
		c.ReadEnd -= c.ReadStart
		c.ReadStart = 0
	} else {
		c.ReadStart = 0
		c.ReadEnd = 0
	}
	for c.ReadStart+n > c.ReadEnd {
		got, err := c.conn.Read(c.ReadBuf[c.ReadEnd:])
		if err != nil {
			return err
		}
		c.Stats.Recvd.Add(uint64(got))
		c.ReadEnd += got
	}
	return nil
}

// Close flushes any pending data and closes the connection.
func (c *Conn) Close() error {
	var err error
	if !c.dropped.Load() {
		err = c.Flush()
	}
	c.stopWriter()
	if err == nil && !c.dropped.Load() {
		err = c.err()
	}
	cerr := c.closeConn()
	if err == nil && !c.dropped.Load() {
		err = cerr
	}
	return err
}

// Drop closes the underlying connection without flushing pending
// data. Any blocked reads and writes fail. The connection must still
// be closed with Close to release the writer.
func (c *Conn) Drop() error {
	c.dropped.Store(true)
	c.setErr(io.ErrClosedPipe)
	return c.closeConn()
}

// Dropped tests if the connection was dropped.
func (c *Conn) Dropped() bool {
	return c.dropped.Load()
}

func (c *Conn) stopWriter() {
	c.stopOnce.Do(func() {
		close(c.toWriter)
		// Wait that the writer completes.
		for range c.fromWriter {
		}
	})
}

func (c *Conn) closeConn() error {
	c.closeOnce.Do(func() {
		closer, ok := c.conn.(io.Closer)
		if ok {
			c.closeErr = closer.Close()
		}
	})
	return c.closeErr
}

// SendByte sends a byte value.
func (c *Conn) SendByte(val byte) error {
	if c.WritePos+1 > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.WriteBuf[c.WritePos] = val
	c.WritePos++
	return nil
}

// SendUint16 sends an uint16 value.
func (c *Conn) SendUint16(val int) error {
	if c.WritePos+2 > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.WriteBuf[c.WritePos+0] = byte((uint32(val) >> 8) & 0xff)
	c.WriteBuf[c.WritePos+1] = byte(uint32(val) & 0xff)
	c.WritePos += 2
	return nil
}

// SendUint32 sends an uint32 value.
func (c *Conn) SendUint32(val int) error {
	if c.WritePos+4 > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.WriteBuf[c.WritePos+0] = byte((uint32(val) >> 24) & 0xff)
	c.WriteBuf[c.WritePos+1] = byte((uint32(val) >> 16) & 0xff)
	c.WriteBuf[c.WritePos+2] = byte((uint32(val) >> 8) & 0xff)
	c.WriteBuf[c.WritePos+3] = byte(uint32(val) & 0xff)
	c.WritePos += 4
	return nil
}

// SendFixed sends fixed size binary data without a length prefix.
func (c *Conn) SendFixed(val []byte) error {
	if len(val) > writeBufSize {
		return fmt.Errorf("p2p: fixed data too long (%d bytes)", len(val))
	}
	if c.WritePos+len(val) > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	copy(c.WriteBuf[c.WritePos:], val)
	c.WritePos += len(val)
	return nil
}

// SendData sends binary data.
func (c *Conn) SendData(val []byte) error {
	if len(val) > MaxDataSize {
		return fmt.Errorf("p2p: data too long (%d bytes)", len(val))
	}
	if c.WritePos+4+len(val) > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	err := c.SendUint32(len(val))
	if err != nil {
		return err
	}
	copy(c.WriteBuf[c.WritePos:], val)
	c.WritePos += len(val)
	return nil
}

// SendString sends a string value.
func (c *Conn) SendString(val string) error {
	return c.SendData([]byte(val))
}

// ReceiveByte receives a byte value.
func (c *Conn) ReceiveByte() (byte, error) {
	if c.ReadStart+1 > c.ReadEnd {
		if err := c.Fill(1); err != nil {
			return 0, err
		}
	}
	val := c.ReadBuf[c.ReadStart]
	c.ReadStart++
	return val, nil
}

// ReceiveUint16 receives an uint16 value.
func (c *Conn) ReceiveUint16() (int, error) {
	if c.ReadStart+2 > c.ReadEnd {
		if err := c.Fill(2); err != nil {
			return 0, err
		}
	}
	val := uint32(c.ReadBuf[c.ReadStart+0])
	val <<= 8
	val |= uint32(c.ReadBuf[c.ReadStart+1])
	c.ReadStart += 2

	return int(val), nil
}

// ReceiveUint32 receives an uint32 value.
func (c *Conn) ReceiveUint32() (int, error) {
	if c.ReadStart+4 > c.ReadEnd {
		if err := c.Fill(4); err != nil {
			return 0, err
		}
	}
	val := uint32(c.ReadBuf[c.ReadStart+0])
	val <<= 8
	val |= uint32(c.ReadBuf[c.ReadStart+1])
	val <<= 8
	val |= uint32(c.ReadBuf[c.ReadStart+2])
	val <<= 8
	val |= uint32(c.ReadBuf[c.ReadStart+3])
	c.ReadStart += 4

	return int(val), nil
}

// ReceiveFixed receives len(buf) bytes of binary data into buf.
func (c *Conn) ReceiveFixed(buf []byte) error {
	if c.ReadStart+len(buf) > c.ReadEnd {
		if err := c.Fill(len(buf)); err != nil {
			return err
		}
	}
	copy(buf, c.ReadBuf[c.ReadStart:c.ReadStart+len(buf)])
	c.ReadStart += len(buf)
	return nil
}

// ReceiveData receives binary data.
func (c *Conn) ReceiveData() ([]byte, error) {
	len, err := c.ReceiveUint32()
	if err != nil {
		return nil, err
	}
	if len > MaxDataSize {
		return nil, fmt.Errorf("p2p: data too long (%d bytes)", len)
	}
	result := make([]byte, len)
	if err := c.ReceiveFixed(result); err != nil {
		return nil, err
	}
	return result, nil
}

// ReceiveString receives a string value.
func (c *Conn) ReceiveString() (string, error) {
	data, err := c.ReceiveData()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
