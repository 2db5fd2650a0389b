//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package query implements the query state machine and the
// record-parallel circuit executor.
package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/env"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/gateway"
	"github.com/markkurossi/ipa/protocol"
	"github.com/markkurossi/ipa/step"
	"github.com/markkurossi/ipa/transport"
	"golang.org/x/sync/errgroup"
)

// State defines the query states.
type State int

// Query states.
const (
	Created State = iota
	Running
	Completed
	Aborted
)

var states = map[State]string{
	Created:   "created",
	Running:   "running",
	Completed: "completed",
	Aborted:   "aborted",
}

func (s State) String() string {
	name, ok := states[s]
	if ok {
		return name
	}
	return fmt.Sprintf("{State %d}", int(s))
}

// DefaultActiveWork is the default number of records in flight.
const DefaultActiveWork = 16

// DefaultRoot is the root step name of the query namespace.
const DefaultRoot = "protocol"

// Config defines the query configuration.
type Config struct {
	Field      *ff.Field
	Steps      step.Mode
	Graph      *step.Node
	ActiveWork int
	Gateway    gateway.Config
}

// DefaultConfig returns the default query configuration.
func DefaultConfig() Config {
	return Config{
		Field:      ff.Fp32BitPrime,
		Steps:      step.ModeDescriptive,
		ActiveWork: DefaultActiveWork,
		Gateway:    gateway.DefaultConfig(),
	}
}

// Validate checks the configuration. The gateway capacity must be
// at least twice the active work so that the lowest unfinished
// record always has send credits.
func (config Config) Validate() error {
	if config.Field == nil {
		return fmt.Errorf("no field")
	}
	if config.ActiveWork <= 0 {
		return fmt.Errorf("invalid active work %d", config.ActiveWork)
	}
	if err := config.Gateway.Validate(); err != nil {
		return err
	}
	if config.Gateway.Capacity < 2*config.ActiveWork {
		return fmt.Errorf("gateway capacity %d < 2*active work %d",
			config.Gateway.Capacity, config.ActiveWork)
	}
	switch config.Steps {
	case step.ModeDescriptive:
	case step.ModeCompact:
		if config.Graph == nil {
			return fmt.Errorf("compact steps without step graph")
		}
	default:
		return fmt.Errorf("invalid step mode %s", config.Steps)
	}
	return nil
}

// Namespace creates the step namespace for the configuration.
func (config Config) Namespace() (step.Namespace, error) {
	if config.Steps == step.ModeCompact {
		return step.NewCompact(config.Graph)
	}
	return step.NewDescriptive(DefaultRoot)
}

// Circuit computes the output of one record.
type Circuit[I, O any] func(c *protocol.Context, record ipa.RecordID,
	input I) (O, error)

// Query implements one query execution on a helper.
type Query struct {
	id     ipa.QueryID
	tr     *transport.Transport
	config Config
	env    *env.Config
	gw     *gateway.Gateway
	Timing *Timing

	m     sync.Mutex
	state State
	err   error
}

// New creates a new query and registers it with the transport.
func New(id ipa.QueryID, tr *transport.Transport, config Config,
	cfg *env.Config) (*Query, error) {

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = new(env.Config)
	}
	timing := NewTiming()

	ns, err := config.Namespace()
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(id, ns, tr, config.Gateway, cfg)
	if err != nil {
		return nil, err
	}
	if err := tr.Register(id, gw); err != nil {
		return nil, err
	}
	timing.Sample("Init", config.Field.Name(), ns.Mode().String())

	return &Query{
		id:     id,
		tr:     tr,
		config: config,
		env:    cfg,
		gw:     gw,
		Timing: timing,
		state:  Created,
	}, nil
}

// ID returns the query ID.
func (q *Query) ID() ipa.QueryID {
	return q.id
}

// Role returns the helper role.
func (q *Query) Role() ipa.Role {
	return q.tr.Role()
}

// Config returns the query configuration.
func (q *Query) Config() Config {
	return q.config
}

// State returns the query state.
func (q *Query) State() State {
	q.m.Lock()
	defer q.m.Unlock()
	return q.state
}

// Err returns the abort cause of an aborted query.
func (q *Query) Err() error {
	q.m.Lock()
	defer q.m.Unlock()
	return q.err
}

// Gateway returns the query gateway.
func (q *Query) Gateway() *gateway.Gateway {
	return q.gw
}

func (q *Query) setState(state State, err error) {
	q.m.Lock()
	from := q.state
	q.state = state
	if err != nil && q.err == nil {
		q.err = err
	}
	q.m.Unlock()

	if err != nil {
		q.env.Debugf("%s: query %s: %s -> %s: %v\n",
			q.Role().IDString(), q.id, from, state, err)
	} else {
		q.env.Debugf("%s: query %s: %s -> %s\n",
			q.Role().IDString(), q.id, from, state)
	}
}

func (q *Query) start() error {
	q.m.Lock()
	state := q.state
	if state == Created {
		q.state = Running
	}
	q.m.Unlock()

	if state != Created {
		return fmt.Errorf("query %s: can't execute in state %s", q.id, state)
	}
	q.env.Debugf("%s: query %s: %s -> %s\n",
		q.Role().IDString(), q.id, Created, Running)
	return nil
}

// Abort aborts the query with the cause. Aborting a query that has
// not been executed unregisters it from the transport.
func (q *Query) Abort(err error) {
	if err == nil {
		err = ipa.ErrAborted
	}
	q.gw.Abort(err)

	q.m.Lock()
	created := q.state == Created
	if created {
		q.state = Aborted
		q.err = q.gw.Err()
	}
	q.m.Unlock()

	if created {
		q.tr.Unregister(q.id)
	}
}

// Execute runs the circuit for all input records. At most
// ActiveWork records are in flight at any time and records are
// started in order. The outputs are returned in input order. If any
// record fails, the query is aborted and the function returns the
// root cause.
func Execute[I, O any](ctx context.Context, q *Query, inputs []I,
	circuit Circuit[I, O]) ([]O, error) {

	if err := q.start(); err != nil {
		return nil, err
	}
	defer q.tr.Unregister(q.id)

	cancelled := func() error {
		err := ipa.Errorf(ipa.ErrAborted, "query cancelled: %v",
			context.Cause(ctx))
		q.gw.Abort(err)
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		cancelled()
	})
	defer stop()

	outputs := make([]O, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.config.ActiveWork)
	pctx := protocol.NewContext(gctx, q.config.Field, q.gw, q.tr.PRSS())

	for i, input := range inputs {
		if gctx.Err() != nil || q.gw.Err() != nil {
			break
		}
		record := ipa.RecordID(i)
		g.Go(func() error {
			output, err := circuit(pctx, record, input)
			if err != nil {
				q.gw.Abort(err)
				return err
			}
			outputs[i] = output
			return nil
		})
	}
	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = cancelled()
	}
	if err == nil {
		err = q.gw.Err()
	}
	if err != nil {
		return nil, q.failed(err)
	}
	q.Timing.Sample("Execute", fmt.Sprintf("%d records", len(inputs)))

	if err := q.gw.Finish(ctx); err != nil {
		return nil, q.failed(err)
	}
	q.Timing.Sample("Finish", FileSize(q.tr.Stats().Sum()).String())
	q.setState(Completed, nil)

	return outputs, nil
}

// failed moves the query to the aborted state and returns the root
// cause of the failure.
func (q *Query) failed(err error) error {
	if cause := q.gw.Err(); cause != nil {
		err = cause
	}
	q.setState(Aborted, err)
	return err
}
