//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package protocol implements the circuit-facing protocol context
// and the basic protocols over replicated shares.
package protocol

import (
	"context"
	"errors"
	"sync"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/gateway"
	"github.com/markkurossi/ipa/prss"
	"github.com/markkurossi/ipa/replicated"
	"github.com/markkurossi/ipa/step"
)

// Context is the protocol context of one step. A context is
// immutable and can be shared between the goroutines of all records.
// A protocol gets a child context for each sub-protocol with Narrow
// or Index.
type Context struct {
	ctx   context.Context
	role  ipa.Role
	field *ff.Field
	step  step.Step
	gw    *gateway.Gateway
	prss  *prssCache
}

type prssCache struct {
	m        sync.Mutex
	endpoint *prss.Endpoint
	ns       step.Namespace
	indexed  map[step.Gate]*prss.Indexed
}

func (c *prssCache) get(gate step.Gate) *prss.Indexed {
	c.m.Lock()
	defer c.m.Unlock()

	idx, ok := c.indexed[gate]
	if !ok {
		idx = c.endpoint.Indexed(c.ns.Marshal(gate))
		c.indexed[gate] = idx
	}
	return idx
}

// NewContext creates a root context for the query gateway.
func NewContext(ctx context.Context, field *ff.Field, gw *gateway.Gateway,
	endpoint *prss.Endpoint) *Context {

	ns := gw.Namespace()
	return &Context{
		ctx:   ctx,
		role:  gw.Role(),
		field: field,
		step:  ns.Root(),
		gw:    gw,
		prss: &prssCache{
			endpoint: endpoint,
			ns:       ns,
			indexed:  make(map[step.Gate]*prss.Indexed),
		},
	}
}

// Context returns the Go context of the query.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Role returns the helper role.
func (c *Context) Role() ipa.Role {
	return c.role
}

// Field returns the query field.
func (c *Context) Field() *ff.Field {
	return c.field
}

// Step returns the context step.
func (c *Context) Step() step.Step {
	return c.step
}

// Narrow returns the child context for the named sub-step.
func (c *Context) Narrow(name string) *Context {
	n := *c
	n.step = c.step.Narrow(name)
	return &n
}

// Index returns the child context for the indexed sub-step.
func (c *Context) Index(i int) *Context {
	n := *c
	n.step = c.step.Index(i)
	return &n
}

// Gate returns the gate of the context step.
func (c *Context) Gate() (step.Gate, error) {
	return c.step.Gate()
}

// PRSS returns the PRSS instance of the context step.
func (c *Context) PRSS() (*prss.Indexed, error) {
	gate, err := c.Gate()
	if err != nil {
		return nil, err
	}
	return c.prss.get(gate), nil
}

// Randomness returns the helper's share of a random value for the
// record.
func (c *Context) Randomness(record ipa.RecordID) (replicated.Share, error) {
	idx, err := c.PRSS()
	if err != nil {
		return replicated.Share{}, err
	}
	return idx.Random(c.field, record), nil
}

// Zero returns the helper's share of a three-way sharing of zero for
// the record.
func (c *Context) Zero(record ipa.RecordID) (ff.Element, error) {
	idx, err := c.PRSS()
	if err != nil {
		return 0, err
	}
	return idx.Zero(c.field, record), nil
}

// SendBytes sends the payload of the record to the peer.
func (c *Context) SendBytes(record ipa.RecordID, to ipa.Role,
	payload []byte) error {

	gate, err := c.Gate()
	if err != nil {
		return err
	}
	return c.gw.Send(c.ctx, gate, record, to, payload)
}

// ReceiveBytes receives the payload of the record from the peer.
func (c *Context) ReceiveBytes(record ipa.RecordID, from ipa.Role) (
	[]byte, error) {

	gate, err := c.Gate()
	if err != nil {
		return nil, err
	}
	return c.gw.Receive(c.ctx, gate, record, from)
}

// Send sends the field element of the record to the peer.
func (c *Context) Send(record ipa.RecordID, to ipa.Role,
	v ff.Element) error {

	return c.SendBytes(record, to, c.field.Bytes(v))
}

// Receive receives the field element of the record from the peer.
func (c *Context) Receive(record ipa.RecordID, from ipa.Role) (
	ff.Element, error) {

	data, err := c.ReceiveBytes(record, from)
	if err != nil {
		return 0, err
	}
	v, err := c.field.Unmarshal(data)
	if err != nil {
		return 0, c.annotate(err, record, from)
	}
	return v, nil
}

func (c *Context) annotate(err error, record ipa.RecordID,
	peer ipa.Role) error {

	var e *ipa.Error
	if errors.As(err, &e) {
		return e.At(c.step.String(), record, peer)
	}
	return err
}
