//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package protocol

import (
	"sync"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/replicated"
)

// Multiply multiplies the shared values a and b of the record. The
// protocol runs one communication round on the context step: each
// helper sends its masked product share to its left peer and
// receives its right peer's share.
func Multiply(c *Context, record ipa.RecordID, a, b replicated.Share) (
	replicated.Share, error) {

	f := c.Field()
	zero, err := c.Zero(record)
	if err != nil {
		return replicated.Share{}, err
	}
	z := f.Sum(f.Mul(a.Left, b.Left), f.Mul(a.Left, b.Right),
		f.Mul(a.Right, b.Left), zero)

	if err := c.Send(record, c.Role().Left(), z); err != nil {
		return replicated.Share{}, err
	}
	r, err := c.Receive(record, c.Role().Right())
	if err != nil {
		return replicated.Share{}, err
	}
	return replicated.New(z, r), nil
}

// Reveal opens the shared value of the record to all helpers. Each
// helper sends its left component to its right peer and completes
// the value from the component received from its left peer.
func Reveal(c *Context, record ipa.RecordID, s replicated.Share) (
	ff.Element, error) {

	f := c.Field()
	if err := c.Send(record, c.Role().Right(), s.Left); err != nil {
		return 0, err
	}
	v, err := c.Receive(record, c.Role().Left())
	if err != nil {
		return 0, err
	}
	return f.Sum(s.Left, s.Right, v), nil
}

// ShareKnown returns the helper's share of a value known to all
// helpers.
func ShareKnown(c *Context, v ff.Element) replicated.Share {
	return replicated.ShareKnown(c.Field(), c.Role(), v)
}

// Aggregator sums shares across records. Aggregation is an explicit
// cross-record step: each record can contribute at most once and the
// sum is complete when all records have contributed.
type Aggregator struct {
	m     sync.Mutex
	field *ff.Field
	sum   replicated.Share
	seen  map[ipa.RecordID]bool
}

// NewAggregator creates a new aggregator for the field.
func NewAggregator(f *ff.Field) *Aggregator {
	return &Aggregator{
		field: f,
		seen:  make(map[ipa.RecordID]bool),
	}
}

// Add adds the record's share to the sum.
func (agg *Aggregator) Add(record ipa.RecordID, s replicated.Share) error {
	agg.m.Lock()
	defer agg.m.Unlock()

	if agg.seen[record] {
		e := ipa.Errorf(ipa.ErrMalformed, "record already aggregated")
		e.Record = record
		return e
	}
	agg.seen[record] = true
	agg.sum = replicated.Add(agg.field, agg.sum, s)
	return nil
}

// Count returns the number of aggregated records.
func (agg *Aggregator) Count() int {
	agg.m.Lock()
	defer agg.m.Unlock()
	return len(agg.seen)
}

// Sum returns the sum of the aggregated shares.
func (agg *Aggregator) Sum() replicated.Share {
	agg.m.Lock()
	defer agg.m.Unlock()
	return agg.sum
}
