//
// Copyright (c) 2025-2026 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"errors"
	"io"
)

// Pipe creates an in-memory connection pair. Anything sent to the
// first endpoint can be received from the second and vice versa.
func Pipe() (*Conn, *Conn) {
	var p0, p1 pipe

	p0.r, p1.w = io.Pipe()
	p1.r, p0.w = io.Pipe()

	return NewConn(&p0), NewConn(&p1)
}

// Mesh creates in-memory connections between n peers. The
// connection mesh[i][j] connects peer i to peer j. The diagonal
// mesh[i][i] is nil.
func Mesh(n int) [][]*Conn {
	mesh := make([][]*Conn, n)
	for i := range mesh {
		mesh[i] = make([]*Conn, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			mesh[i][j], mesh[j][i] = Pipe()
		}
	}
	return mesh
}

type pipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// Close closes both directions. A reader blocked on the peer's
// side gets io.EOF.
func (p *pipe) Close() error {
	return errors.Join(p.r.Close(), p.w.Close())
}

func (p *pipe) Read(data []byte) (n int, err error) {
	return p.r.Read(data)
}

func (p *pipe) Write(data []byte) (n int, err error) {
	return p.w.Write(data)
}
