//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package gateway implements the per-query channel between the
// helpers. Messages are addressed by (gate, record, peer) and each
// (gate, peer) pair forms an independent stream with bounded send
// credits.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/env"
	"github.com/markkurossi/ipa/step"
	"github.com/markkurossi/ipa/transport"
	"golang.org/x/sync/semaphore"
)

var (
	_ transport.Handler = &Gateway{}
)

// Transport defines the transport functions used by the gateway.
type Transport interface {
	Role() ipa.Role
	Send(ctx context.Context, to ipa.Role, frames ...*transport.Frame) error
}

type streamKey struct {
	gate step.Gate
	peer ipa.Role
}

type outbound struct {
	credits  *semaphore.Weighted
	inflight int64
	sent     map[ipa.RecordID]bool
}

type inbound struct {
	mailbox  map[ipa.RecordID][]byte
	waiters  map[ipa.RecordID]chan struct{}
	consumed map[ipa.RecordID]bool
	unacked  int
}

// Gateway implements the inter-helper channel of one query.
type Gateway struct {
	id     ipa.QueryID
	role   ipa.Role
	ns     step.Namespace
	tr     Transport
	config Config
	env    *env.Config

	ctx    context.Context
	cancel context.CancelCauseFunc

	m   sync.Mutex
	err error
	out map[streamKey]*outbound
	in  map[streamKey]*inbound
}

// New creates a new gateway for the query.
func New(id ipa.QueryID, ns step.Namespace, tr Transport, config Config,
	cfg *env.Config) (*Gateway, error) {

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = new(env.Config)
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Gateway{
		id:     id,
		role:   tr.Role(),
		ns:     ns,
		tr:     tr,
		config: config,
		env:    cfg,
		ctx:    ctx,
		cancel: cancel,
		out:    make(map[streamKey]*outbound),
		in:     make(map[streamKey]*inbound),
	}, nil
}

// ID returns the query ID.
func (g *Gateway) ID() ipa.QueryID {
	return g.id
}

// Role returns the helper role.
func (g *Gateway) Role() ipa.Role {
	return g.role
}

// Config returns the gateway configuration.
func (g *Gateway) Config() Config {
	return g.config
}

// Namespace returns the query's step namespace.
func (g *Gateway) Namespace() step.Namespace {
	return g.ns
}

// Err returns the abort cause or nil if the gateway is not aborted.
func (g *Gateway) Err() error {
	g.m.Lock()
	defer g.m.Unlock()
	return g.err
}

// Done returns a channel that is closed when the gateway is aborted.
func (g *Gateway) Done() <-chan struct{} {
	return g.ctx.Done()
}

func (g *Gateway) errorf(kind error, gate step.Gate, record ipa.RecordID,
	peer ipa.Role, format string, a ...interface{}) error {

	return ipa.Errorf(kind, format, a...).At(g.ns.Name(gate), record, peer)
}

func (g *Gateway) checkPeer(peer ipa.Role) error {
	if !peer.Valid() || peer == g.role {
		return fmt.Errorf("%s: invalid peer %s", g.role, peer)
	}
	return nil
}

func (g *Gateway) outbound(key streamKey) *outbound {
	out, ok := g.out[key]
	if !ok {
		out = &outbound{
			credits: semaphore.NewWeighted(int64(g.config.Capacity)),
			sent:    make(map[ipa.RecordID]bool),
		}
		g.out[key] = out
	}
	return out
}

func (g *Gateway) inbound(key streamKey) *inbound {
	in, ok := g.in[key]
	if !ok {
		in = &inbound{
			mailbox:  make(map[ipa.RecordID][]byte),
			waiters:  make(map[ipa.RecordID]chan struct{}),
			consumed: make(map[ipa.RecordID]bool),
		}
		g.in[key] = in
	}
	return in
}

// Send sends the payload of the record to the peer. Each (gate,
// record, peer) can be sent only once. The function blocks while
// the stream has no send credits.
func (g *Gateway) Send(ctx context.Context, gate step.Gate,
	record ipa.RecordID, to ipa.Role, payload []byte) error {

	if err := g.checkPeer(to); err != nil {
		return err
	}
	key := streamKey{
		gate: gate,
		peer: to,
	}

	g.m.Lock()
	if g.err != nil {
		g.m.Unlock()
		return g.err
	}
	out := g.outbound(key)
	if out.sent[record] {
		g.m.Unlock()
		return g.errorf(ipa.ErrDuplicateSend, gate, record, to,
			"message already sent")
	}
	out.sent[record] = true
	g.m.Unlock()

	sctx, cancel := context.WithTimeout(g.ctx, g.config.SendTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := out.credits.Acquire(sctx, 1); err != nil {
		return g.waitError(ctx, gate, record, to, "send stalled")
	}
	g.m.Lock()
	out.inflight++
	g.m.Unlock()

	err := g.tr.Send(sctx, to, &transport.Frame{
		Kind:    transport.KindData,
		Query:   g.id,
		Gate:    g.ns.Marshal(gate),
		Record:  record,
		Payload: payload,
	})
	if err != nil {
		if cause := g.Err(); cause != nil {
			return cause
		}
		return g.errorf(ipa.ErrCommunication, gate, record, to, "%v", err)
	}
	return nil
}

// waitError returns the error for a wait that did not complete: the
// abort cause, the caller's context error, or a timeout.
func (g *Gateway) waitError(ctx context.Context, gate step.Gate,
	record ipa.RecordID, peer ipa.Role, timeout string) error {

	if cause := g.Err(); cause != nil {
		return cause
	}
	if err := ctx.Err(); err != nil {
		return g.errorf(ipa.ErrCommunication, gate, record, peer, "%v", err)
	}
	return g.errorf(ipa.ErrCommunication, gate, record, peer, "%s", timeout)
}

// Receive receives the payload of the record from the peer. The
// function blocks until the message arrives, the gateway is aborted,
// or the receive timeout expires.
func (g *Gateway) Receive(ctx context.Context, gate step.Gate,
	record ipa.RecordID, from ipa.Role) ([]byte, error) {

	if err := g.checkPeer(from); err != nil {
		return nil, err
	}
	key := streamKey{
		gate: gate,
		peer: from,
	}

	g.m.Lock()
	if g.err != nil {
		g.m.Unlock()
		return nil, g.err
	}
	in := g.inbound(key)
	if in.consumed[record] {
		g.m.Unlock()
		return nil, g.errorf(ipa.ErrMalformed, gate, record, from,
			"message already received")
	}
	if _, ok := in.waiters[record]; ok {
		g.m.Unlock()
		return nil, g.errorf(ipa.ErrMalformed, gate, record, from,
			"concurrent receive")
	}
	data, ok := in.mailbox[record]
	if ok {
		ack := g.consume(in, record)
		g.m.Unlock()
		return data, g.ack(ctx, gate, from, ack)
	}
	ch := make(chan struct{})
	in.waiters[record] = ch
	g.m.Unlock()

	timer := time.NewTimer(g.config.ReceiveTimeout)
	defer timer.Stop()

	select {
	case <-ch:
	case <-g.ctx.Done():
	case <-ctx.Done():
	case <-timer.C:
	}

	g.m.Lock()
	data, ok = in.mailbox[record]
	if !ok {
		delete(in.waiters, record)
		g.m.Unlock()
		return nil, g.waitError(ctx, gate, record, from, "receive timeout")
	}
	ack := g.consume(in, record)
	g.m.Unlock()

	return data, g.ack(ctx, gate, from, ack)
}

// consume removes the record from the mailbox and returns the number
// of credits to acknowledge. The gateway lock must be held.
func (g *Gateway) consume(in *inbound, record ipa.RecordID) int {
	delete(in.mailbox, record)
	delete(in.waiters, record)
	in.consumed[record] = true
	in.unacked++
	if in.unacked < g.config.AckBatch() {
		return 0
	}
	n := in.unacked
	in.unacked = 0
	return n
}

func (g *Gateway) ack(ctx context.Context, gate step.Gate, to ipa.Role,
	n int) error {

	if n == 0 {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, g.config.SendTimeout)
	defer cancel()

	err := g.tr.Send(sctx, to, &transport.Frame{
		Kind:   transport.KindCredit,
		Query:  g.id,
		Gate:   g.ns.Marshal(gate),
		Record: ipa.RecordID(n),
	})
	if err != nil {
		return g.errorf(ipa.ErrCommunication, gate, ipa.NoRecord, to,
			"acknowledge: %v", err)
	}
	return nil
}

// Deliver implements transport.Handler.Deliver.
func (g *Gateway) Deliver(from ipa.Role, f *transport.Frame) {
	if f.Kind == transport.KindAbort {
		g.abort(ipa.Errorf(ipa.ErrAborted, "aborted by %s: %s",
			from, f.Payload), false)
		return
	}
	gate, err := g.ns.Unmarshal(f.Gate)
	if err != nil {
		g.Abort(fmt.Errorf("%s from %s: %w", f.Kind, from, err))
		return
	}
	key := streamKey{
		gate: gate,
		peer: from,
	}

	g.m.Lock()
	if g.err != nil {
		g.m.Unlock()
		return
	}
	switch f.Kind {
	case transport.KindData:
		in := g.inbound(key)
		_, ok := in.mailbox[f.Record]
		if ok || in.consumed[f.Record] {
			g.m.Unlock()
			g.Abort(g.errorf(ipa.ErrMalformed, gate, f.Record, from,
				"duplicate message"))
			return
		}
		in.mailbox[f.Record] = f.Payload
		ch, ok := in.waiters[f.Record]
		if ok {
			close(ch)
			delete(in.waiters, f.Record)
		}
		g.m.Unlock()

	case transport.KindCredit:
		out := g.outbound(key)
		n := int64(f.Record)
		if n > out.inflight {
			g.m.Unlock()
			g.Abort(g.errorf(ipa.ErrMalformed, gate, ipa.NoRecord, from,
				"%d credits returned, %d in flight", n, out.inflight))
			return
		}
		out.inflight -= n
		g.m.Unlock()
		out.credits.Release(n)

	default:
		g.m.Unlock()
		g.Abort(ipa.Errorf(ipa.ErrMalformed, "unexpected %s from %s",
			f.Kind, from))
	}
}

// Fail implements transport.Handler.Fail.
func (g *Gateway) Fail(peer ipa.Role, err error) {
	g.Abort(err)
}

// Abort aborts the gateway. The first abort cause wins and all
// blocked operations return it. The peers are notified with abort
// frames.
func (g *Gateway) Abort(err error) {
	g.abort(err, true)
}

func (g *Gateway) abort(err error, propagate bool) {
	if err == nil {
		err = ipa.ErrAborted
	}
	g.m.Lock()
	if g.err != nil {
		g.m.Unlock()
		return
	}
	g.err = err
	g.m.Unlock()

	g.cancel(err)
	g.env.Debugf("%s: query %s: aborted: %v\n", g.role.IDString(), g.id, err)

	if propagate {
		go g.sendAbort(err)
	}
}

func (g *Gateway) sendAbort(cause error) {
	ctx, cancel := context.WithTimeout(context.Background(),
		g.config.SendTimeout)
	defer cancel()

	for _, peer := range g.role.Peers() {
		err := g.tr.Send(ctx, peer, &transport.Frame{
			Kind:    transport.KindAbort,
			Query:   g.id,
			Record:  ipa.NoRecord,
			Payload: []byte(cause.Error()),
		})
		if err != nil {
			g.env.Debugf("%s: query %s: abort to %s: %v\n",
				g.role.IDString(), g.id, peer, err)
		}
	}
}

// Finish completes the gateway. The function acknowledges all
// consumed messages, verifies that all received messages were
// consumed, and waits until the peers have acknowledged all sent
// messages.
func (g *Gateway) Finish(ctx context.Context) error {
	type pending struct {
		key streamKey
		n   int
	}
	var acks []pending
	var unconsumed []error

	g.m.Lock()
	if g.err != nil {
		g.m.Unlock()
		return g.err
	}
	for key, in := range g.in {
		if in.unacked > 0 {
			acks = append(acks, pending{
				key: key,
				n:   in.unacked,
			})
			in.unacked = 0
		}
		for record := range in.mailbox {
			unconsumed = append(unconsumed, g.errorf(ipa.ErrMalformed,
				key.gate, record, key.peer, "message not received"))
		}
	}
	outs := make(map[streamKey]*outbound)
	for key, out := range g.out {
		outs[key] = out
	}
	g.m.Unlock()

	for _, p := range acks {
		if err := g.ack(ctx, p.key.gate, p.key.peer, p.n); err != nil {
			g.Abort(err)
			return err
		}
	}
	if len(unconsumed) > 0 {
		sort.Slice(unconsumed, func(i, j int) bool {
			return unconsumed[i].Error() < unconsumed[j].Error()
		})
		err := unconsumed[0]
		if len(unconsumed) > 1 {
			err = fmt.Errorf("%w (and %d more)", err, len(unconsumed)-1)
		}
		g.Abort(err)
		return err
	}

	dctx, cancel := context.WithTimeout(g.ctx, g.config.DrainTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	for key, out := range outs {
		capacity := int64(g.config.Capacity)
		if err := out.credits.Acquire(dctx, capacity); err != nil {
			err = g.waitError(ctx, key.gate, ipa.NoRecord, key.peer,
				"drain timeout")
			g.Abort(err)
			return err
		}
		out.credits.Release(capacity)
	}
	g.env.Debugf("%s: query %s: gateway drained\n", g.role.IDString(), g.id)

	return nil
}
