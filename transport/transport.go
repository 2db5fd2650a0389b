//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package transport implements the helper's connections to its two
// peer helpers. The transport multiplexes frames of concurrent
// queries over the connections, keeps per-peer frame order, and
// reports connection losses to the queries.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/env"
	"github.com/markkurossi/ipa/p2p"
	"github.com/markkurossi/ipa/prss"
)

const (
	// QueueSize is the size of the per-peer send queue.
	QueueSize = 4096

	// MaxParked is the maximum number of frames parked for queries
	// that are not registered yet.
	MaxParked = 64 * 1024
)

// ErrClosed is returned when the transport is closed.
var ErrClosed = errors.New("transport closed")

// Handler handles the frames of one query. The transport calls
// Deliver from the peer's reader goroutine in frame order and Fail
// when a peer connection is lost. The functions must not block and
// must not call Register or Unregister.
type Handler interface {
	Deliver(from ipa.Role, f *Frame)
	Fail(peer ipa.Role, err error)
}

// Transport implements the helper's connections to its peers.
type Transport struct {
	role  ipa.Role
	env   *env.Config
	prss  *prss.Endpoint
	peers [ipa.NumHelpers]*peer

	m        sync.Mutex
	handlers map[ipa.QueryID]Handler
	parked   map[ipa.QueryID][]parkedFrame
	nparked  int
	finished map[ipa.QueryID]bool

	closing   chan struct{}
	closeOnce sync.Once
	writers   sync.WaitGroup
	readers   sync.WaitGroup
}

type parkedFrame struct {
	from ipa.Role
	f    *Frame
}

type peer struct {
	role  ipa.Role
	conn  *p2p.Conn
	queue chan *Frame
	done  chan struct{}
	m     sync.Mutex
	err   error
}

// kill marks the peer dead. The function returns true if the peer
// was alive.
func (p *peer) kill(err error) bool {
	p.m.Lock()
	defer p.m.Unlock()
	if p.err != nil {
		return false
	}
	p.err = err
	close(p.done)
	return true
}

func (p *peer) dead() error {
	p.m.Lock()
	defer p.m.Unlock()
	return p.err
}

// New creates a new transport for the role over the connections to
// the peer helpers. The function runs the handshake with both peers
// and derives the PRSS seeds shared with them.
func New(ctx context.Context, role ipa.Role, cfg *env.Config,
	conns map[ipa.Role]*p2p.Conn) (*Transport, error) {

	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %s", role)
	}
	if cfg == nil {
		cfg = new(env.Config)
	}
	t := &Transport{
		role:     role,
		env:      cfg,
		handlers: make(map[ipa.QueryID]Handler),
		parked:   make(map[ipa.QueryID][]parkedFrame),
		finished: make(map[ipa.QueryID]bool),
		closing:  make(chan struct{}),
	}
	for _, r := range role.Peers() {
		conn, ok := conns[r]
		if !ok {
			return nil, fmt.Errorf("%s: no connection to %s", role, r)
		}
		t.peers[r.Index()] = &peer{
			role:  r,
			conn:  conn,
			queue: make(chan *Frame, QueueSize),
			done:  make(chan struct{}),
		}
	}

	kp, err := prss.GenerateKeyPair(cfg.GetRandom())
	if err != nil {
		return nil, err
	}
	seeds, err := t.handshake(ctx, kp)
	if err != nil {
		for _, r := range role.Peers() {
			t.peer(r).conn.Drop()
		}
		return nil, err
	}
	t.prss = prss.NewEndpoint(seeds[0], seeds[1])

	for _, r := range role.Peers() {
		p := t.peer(r)
		t.writers.Add(1)
		go t.writer(p)
		t.readers.Add(1)
		go t.reader(p)
	}
	cfg.Debugf("%s: transport up\n", role.IDString())

	return t, nil
}

// handshake exchanges roles and public keys with the peers and
// returns the left and right PRSS seeds.
func (t *Transport) handshake(ctx context.Context, kp *prss.KeyPair) (
	[2]prss.Seed, error) {

	var seeds [2]prss.Seed
	done := make(chan error, 1)

	go func() {
		peers := [2]ipa.Role{t.role.Left(), t.role.Right()}
		for _, r := range peers {
			conn := t.peer(r).conn
			if err := conn.SendByte(byte(t.role)); err != nil {
				done <- err
				return
			}
			if err := conn.SendData(kp.Public()); err != nil {
				done <- err
				return
			}
			if err := conn.Flush(); err != nil {
				done <- err
				return
			}
		}
		for idx, r := range peers {
			conn := t.peer(r).conn
			b, err := conn.ReceiveByte()
			if err != nil {
				done <- err
				return
			}
			if ipa.Role(b) != r {
				done <- ipa.Errorf(ipa.ErrCommunication,
					"%s: expected peer %s, got %s", t.role, r, ipa.Role(b))
				return
			}
			pub, err := conn.ReceiveData()
			if err != nil {
				done <- err
				return
			}
			seeds[idx], err = kp.Seed(pub, t.role, r)
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			var e *ipa.Error
			if !errors.As(err, &e) {
				err = ipa.Errorf(ipa.ErrCommunication, "handshake: %v", err)
			}
			return seeds, err
		}
		return seeds, nil

	case <-ctx.Done():
		for _, r := range t.role.Peers() {
			t.peer(r).conn.Drop()
		}
		<-done
		return seeds, ipa.Errorf(ipa.ErrCommunication, "handshake: %v",
			ctx.Err())
	}
}

func (t *Transport) peer(r ipa.Role) *peer {
	if !r.Valid() {
		return nil
	}
	return t.peers[r.Index()]
}

// Role returns the transport's helper role.
func (t *Transport) Role() ipa.Role {
	return t.role
}

// Env returns the transport's environment.
func (t *Transport) Env() *env.Config {
	return t.env
}

// PRSS returns the PRSS endpoint shared with the peers.
func (t *Transport) PRSS() *prss.Endpoint {
	return t.prss
}

// Stats returns the I/O statistics of the peer connections.
func (t *Transport) Stats() p2p.IOStats {
	result := p2p.NewIOStats()
	for _, r := range t.role.Peers() {
		result = result.Add(t.peer(r).conn.Stats)
	}
	return result
}

// Err returns the connection error of the peer or nil if the peer is
// connected.
func (t *Transport) Err(r ipa.Role) error {
	p := t.peer(r)
	if p == nil {
		return fmt.Errorf("%s: invalid peer %s", t.role, r)
	}
	return p.dead()
}

// Send enqueues the frames to the peer. The frames are sent in
// order.
func (t *Transport) Send(ctx context.Context, to ipa.Role,
	frames ...*Frame) error {

	p := t.peer(to)
	if p == nil || to == t.role {
		return fmt.Errorf("%s: invalid peer %s", t.role, to)
	}
	for _, f := range frames {
		if err := p.dead(); err != nil {
			return err
		}
		select {
		case p.queue <- f:
		case <-p.done:
			return p.dead()
		case <-t.closing:
			return ErrClosed
		case <-ctx.Done():
			return ipa.Errorf(ipa.ErrCommunication, "send to %s: %v",
				to, ctx.Err())
		}
	}
	return nil
}

// Register registers the handler for the query. Any frames received
// for the query before the registration are delivered to the handler
// before the function returns.
func (t *Transport) Register(id ipa.QueryID, h Handler) error {
	select {
	case <-t.closing:
		return ErrClosed
	default:
	}

	t.m.Lock()
	defer t.m.Unlock()

	// Peers are killed before the handlers are notified so checking
	// them under the lock never loses a failure.
	for _, r := range t.role.Peers() {
		if err := t.peer(r).dead(); err != nil {
			return err
		}
	}

	if _, ok := t.handlers[id]; ok {
		return fmt.Errorf("query %s already registered", id)
	}
	if t.finished[id] {
		return fmt.Errorf("query %s already finished", id)
	}
	t.handlers[id] = h
	parked := t.parked[id]
	delete(t.parked, id)
	t.nparked -= len(parked)

	for _, pf := range parked {
		h.Deliver(pf.from, pf.f)
	}
	return nil
}

// Unregister removes the query handler. Any frames received for the
// query after this are dropped.
func (t *Transport) Unregister(id ipa.QueryID) {
	t.m.Lock()
	defer t.m.Unlock()

	delete(t.handlers, id)
	t.nparked -= len(t.parked[id])
	delete(t.parked, id)
	t.finished[id] = true
}

// Disconnect drops the connection to the peer. All registered queries
// fail with a communication error.
func (t *Transport) Disconnect(r ipa.Role) error {
	p := t.peer(r)
	if p == nil || r == t.role {
		return fmt.Errorf("%s: invalid peer %s", t.role, r)
	}
	t.fail(p, ipa.Errorf(ipa.ErrCommunication, "disconnected from %s", r))
	return nil
}

// Close closes the transport. Queued frames are flushed to the peers
// before the connections are closed.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closing)
		t.writers.Wait()
		for _, r := range t.role.Peers() {
			p := t.peer(r)
			if cerr := p.conn.Close(); cerr != nil && err == nil &&
				p.dead() == nil {
				err = cerr
			}
			p.kill(ErrClosed)
		}
		t.readers.Wait()
		t.env.Debugf("%s: transport closed\n", t.role.IDString())
	})
	return err
}

func (t *Transport) fail(p *peer, err error) {
	if !p.kill(err) {
		return
	}
	p.conn.Drop()

	select {
	case <-t.closing:
		t.env.Debugf("%s: connection to %s closed\n", t.role.IDString(),
			p.role.IDString())
	default:
		t.env.Logf("%s: connection to %s lost: %v\n", t.role.IDString(),
			p.role.IDString(), err)
	}

	t.m.Lock()
	handlers := make([]Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.m.Unlock()

	for _, h := range handlers {
		h.Fail(p.role, err)
	}
}

func (t *Transport) reader(p *peer) {
	defer t.readers.Done()
	for {
		f, err := ReadFrame(p.conn)
		if err != nil {
			var e *ipa.Error
			if !errors.As(err, &e) {
				err = ipa.Errorf(ipa.ErrCommunication, "read from %s: %v",
					p.role, err)
			}
			t.fail(p, err)
			return
		}
		t.dispatch(p.role, f)
	}
}

func (t *Transport) dispatch(from ipa.Role, f *Frame) {
	t.m.Lock()
	defer t.m.Unlock()

	h, ok := t.handlers[f.Query]
	if ok {
		h.Deliver(from, f)
		return
	}
	if t.finished[f.Query] {
		t.env.Debugf("%s: dropping %s from %s for finished query\n",
			t.role.IDString(), f, from)
		return
	}
	if t.nparked >= MaxParked {
		t.env.Logf("%s: too many parked frames, dropping %s from %s\n",
			t.role.IDString(), f, from)
		return
	}
	t.parked[f.Query] = append(t.parked[f.Query], parkedFrame{
		from: from,
		f:    f,
	})
	t.nparked++
}

func (t *Transport) writer(p *peer) {
	defer t.writers.Done()
	for {
		var f *Frame
		select {
		case f = <-p.queue:
		case <-p.done:
			return
		case <-t.closing:
			// Drain frames queued before close.
			for {
				select {
				case f = <-p.queue:
					if err := WriteFrame(p.conn, f); err != nil {
						t.fail(p, ipa.Errorf(ipa.ErrCommunication,
							"write to %s: %v", p.role, err))
						return
					}
				default:
					if err := p.conn.Flush(); err != nil {
						t.fail(p, ipa.Errorf(ipa.ErrCommunication,
							"write to %s: %v", p.role, err))
					}
					return
				}
			}
		}
		// Write all queued frames and flush once.
		for f != nil {
			if err := WriteFrame(p.conn, f); err != nil {
				t.fail(p, ipa.Errorf(ipa.ErrCommunication,
					"write to %s: %v", p.role, err))
				return
			}
			select {
			case f = <-p.queue:
			default:
				f = nil
			}
		}
		if err := p.conn.Flush(); err != nil {
			t.fail(p, ipa.Errorf(ipa.ErrCommunication,
				"write to %s: %v", p.role, err))
			return
		}
	}
}
