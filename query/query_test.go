//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package query_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/p2p"
	"github.com/markkurossi/ipa/protocol"
	"github.com/markkurossi/ipa/query"
	"github.com/markkurossi/ipa/step"
	"github.com/markkurossi/ipa/world"
)

func TestConfigValidate(t *testing.T) {
	config := query.DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}

	tests := []func(c *query.Config){
		func(c *query.Config) { c.Field = nil },
		func(c *query.Config) { c.ActiveWork = 0 },
		func(c *query.Config) { c.Gateway.Capacity = 2*c.ActiveWork - 1 },
		func(c *query.Config) { c.Steps = step.ModeCompact },
		func(c *query.Config) { c.Gateway.ReceiveTimeout = 0 },
	}
	for idx, test := range tests {
		c := query.DefaultConfig()
		test(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("test %d: invalid config accepted", idx)
		}
	}

	config.ActiveWork = 512
	config.Gateway.Capacity = 1024
	if err := config.Validate(); err != nil {
		t.Errorf("capacity 2*active work rejected: %v", err)
	}
}

func TestStateString(t *testing.T) {
	for state, name := range map[query.State]string{
		query.Created:   "created",
		query.Running:   "running",
		query.Completed: "completed",
		query.Aborted:   "aborted",
	} {
		if state.String() != name {
			t.Errorf("%d: got %s, expected %s", state, state, name)
		}
	}
}

func TestTiming(t *testing.T) {
	timing := query.NewTiming()
	timing.Sample("Init", "Fp31")
	time.Sleep(time.Millisecond)
	timing.Sample("Execute", "10 records")

	stats := p2p.NewIOStats()
	stats.Sent.Add(2000)
	stats.Recvd.Add(3000)

	var buf bytes.Buffer
	timing.Print(&buf, stats)
	out := buf.String()
	for _, s := range []string{"Init", "Execute", "Total", "5kB", "10 records"} {
		if !strings.Contains(out, s) {
			t.Errorf("report does not contain %q:\n%s", s, out)
		}
	}
	if timing.Total() <= 0 {
		t.Errorf("invalid total %s", timing.Total())
	}
}

func TestFileSize(t *testing.T) {
	tests := []struct {
		size     query.FileSize
		expected string
	}{
		{999, "999B"},
		{1001, "1kB"},
		{2 * 1000 * 1000 * 1000, "2GB"},
	}
	for _, test := range tests {
		if test.size.String() != test.expected {
			t.Errorf("FileSize(%d)=%s, expected %s",
				uint64(test.size), test.size, test.expected)
		}
	}
}

func TestLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w, err := world.New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	config := query.DefaultConfig()
	config.Field = ff.Fp31
	id := ipa.QueryIDFromSeed("lifecycle")
	queries, err := w.Queries(id, config)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range queries {
		if q.State() != query.Created {
			t.Fatalf("%s: state %s", q.Role(), q.State())
		}
	}
	// Same ID can't be registered twice.
	if _, err := query.New(id, w.Transport(ipa.H1), config, nil); err == nil {
		t.Errorf("duplicate query registered")
	}

	circuit := func(c *protocol.Context, record ipa.RecordID,
		in ff.Element) (ff.Element, error) {
		return in, nil
	}
	inputs := []ff.Element{1, 2, 3}
	for _, q := range queries {
		out, err := query.Execute(ctx, q, inputs, circuit)
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != len(inputs) || out[2] != 3 {
			t.Errorf("%s: unexpected outputs %v", q.Role(), out)
		}
		if q.State() != query.Completed {
			t.Errorf("%s: state %s", q.Role(), q.State())
		}
		if _, err := query.Execute(ctx, q, inputs, circuit); err == nil {
			t.Errorf("%s: completed query executed again", q.Role())
		}
	}

	// Abort of a created query.
	q, err := query.New(ipa.NewQueryID(), w.Transport(ipa.H2), config, nil)
	if err != nil {
		t.Fatal(err)
	}
	cause := errors.New("not needed")
	q.Abort(cause)
	if q.State() != query.Aborted || !errors.Is(q.Err(), cause) {
		t.Errorf("abort: state %s, err %v", q.State(), q.Err())
	}
	if _, err := query.Execute(ctx, q, inputs, circuit); err == nil {
		t.Errorf("aborted query executed")
	}
}
