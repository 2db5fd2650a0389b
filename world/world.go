//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package world implements an in-process world of three helpers
// connected with in-memory pipes. It runs circuits on all helpers
// for tests and benchmarks.
package world

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/env"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/p2p"
	"github.com/markkurossi/ipa/query"
	"github.com/markkurossi/ipa/replicated"
	"github.com/markkurossi/ipa/transport"
	"golang.org/x/sync/errgroup"
)

// World implements three helpers.
type World struct {
	Transports [ipa.NumHelpers]*transport.Transport
	Env        *env.Config
}

// New creates a new world and connects its helpers.
func New(ctx context.Context, cfg *env.Config) (*World, error) {
	if cfg == nil {
		cfg = new(env.Config)
	}
	mesh := p2p.Mesh(ipa.NumHelpers)
	var conns [ipa.NumHelpers]map[ipa.Role]*p2p.Conn
	for i := range conns {
		conns[i] = make(map[ipa.Role]*p2p.Conn)
		for j, conn := range mesh[i] {
			if conn != nil {
				conns[i][ipa.RoleAt(j)] = conn
			}
		}
	}

	w := &World{
		Env: cfg,
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range w.Transports {
		g.Go(func() error {
			tr, err := transport.New(gctx, ipa.RoleAt(i), cfg, conns[i])
			if err != nil {
				return err
			}
			w.Transports[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Close closes the world.
func (w *World) Close() error {
	var result error
	var m sync.Mutex
	var wg sync.WaitGroup
	for _, tr := range w.Transports {
		if tr == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.Close(); err != nil {
				m.Lock()
				if result == nil {
					result = err
				}
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	return result
}

// Transport returns the transport of the helper.
func (w *World) Transport(r ipa.Role) *transport.Transport {
	return w.Transports[r.Index()]
}

// Disconnect drops the connection between the helpers a and b.
func (w *World) Disconnect(a, b ipa.Role) error {
	if !a.Valid() || !b.Valid() || a == b {
		return fmt.Errorf("invalid helper pair %s-%s", a, b)
	}
	return w.Transport(a).Disconnect(b)
}

// Queries creates the query on all helpers.
func (w *World) Queries(id ipa.QueryID, config query.Config) (
	[ipa.NumHelpers]*query.Query, error) {

	var result [ipa.NumHelpers]*query.Query
	for i, tr := range w.Transports {
		q, err := query.New(id, tr, config, w.Env)
		if err != nil {
			for _, q := range result[:i] {
				q.Abort(err)
			}
			return result, err
		}
		result[i] = q
	}
	return result, nil
}

// Result holds the outcome of a circuit execution on all helpers.
type Result[O any] struct {
	Outputs [ipa.NumHelpers][]O
	Errs    [ipa.NumHelpers]error
	Queries [ipa.NumHelpers]*query.Query
}

// Err returns the first helper error or nil if all helpers
// succeeded.
func (r *Result[O]) Err() error {
	for i, err := range r.Errs {
		if err != nil {
			return fmt.Errorf("%s: %w", ipa.RoleAt(i), err)
		}
	}
	return nil
}

// SemiHonest runs the circuit on all helpers with their inputs and
// waits until all helpers complete or abort.
func SemiHonest[I, O any](ctx context.Context, w *World, config query.Config,
	inputs [ipa.NumHelpers][]I, circuit query.Circuit[I, O]) *Result[O] {

	result := new(Result[O])

	queries, err := w.Queries(ipa.NewQueryID(), config)
	if err != nil {
		for i := range result.Errs {
			result.Errs[i] = err
		}
		return result
	}
	result.Queries = queries

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Outputs[i], result.Errs[i] = query.Execute(ctx, q,
				inputs[i], circuit)
		}()
	}
	wg.Wait()

	return result
}

// ShareInputs splits the values into replicated shares for the
// helpers.
func ShareInputs(f *ff.Field, values []ff.Element, rand io.Reader) (
	[ipa.NumHelpers][]replicated.Share, error) {

	var result [ipa.NumHelpers][]replicated.Share
	for i := range result {
		result[i] = make([]replicated.Share, len(values))
	}
	for idx, v := range values {
		shares, err := replicated.Split(f, v, rand)
		if err != nil {
			return result, err
		}
		for i := range result {
			result[i][idx] = shares[i]
		}
	}
	return result, nil
}

// Reconstruct reconstructs the values from the helpers' output
// shares. The shares are validated for consistency.
func Reconstruct(f *ff.Field, outputs [ipa.NumHelpers][]replicated.Share) (
	[]ff.Element, error) {

	n := len(outputs[0])
	for i, o := range outputs {
		if len(o) != n {
			return nil, ipa.Errorf(ipa.ErrField,
				"%s: %d outputs, expected %d", ipa.RoleAt(i), len(o), n)
		}
	}
	result := make([]ff.Element, n)
	for idx := range result {
		var shares [ipa.NumHelpers]replicated.Share
		for i := range shares {
			shares[i] = outputs[i][idx]
		}
		v, err := replicated.Reconstruct(f, shares)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		result[idx] = v
	}
	return result, nil
}
