//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/p2p"
	"golang.org/x/sync/errgroup"
)

func newTransports(t *testing.T) [ipa.NumHelpers]*Transport {
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result [ipa.NumHelpers]*Transport
	g, ctx := errgroup.WithContext(ctx)
	for i := range result {
		g.Go(func() error {
			var err error
			result[i], err = New(ctx, ipa.RoleAt(i), nil, conns[i])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("transport: %v", err)
	}
	t.Cleanup(func() {
		for _, tr := range result {
			tr.Close()
		}
	})
	return result
}

type delivery struct {
	from ipa.Role
	f    *Frame
}

type recorder struct {
	frames chan delivery
	fails  chan error
}

func newRecorder() *recorder {
	return &recorder{
		frames: make(chan delivery, 1024),
		fails:  make(chan error, 16),
	}
}

func (r *recorder) Deliver(from ipa.Role, f *Frame) {
	r.frames <- delivery{
		from: from,
		f:    f,
	}
}

func (r *recorder) Fail(peer ipa.Role, err error) {
	r.fails <- err
}

func (r *recorder) next(t *testing.T) delivery {
	select {
	case d := <-r.frames:
		return d
	case <-time.After(5 * time.Second):
		t.Fatalf("no frame delivered")
	}
	return delivery{}
}

func (r *recorder) fail(t *testing.T) error {
	select {
	case err := <-r.fails:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("no failure reported")
	}
	return nil
}

func TestPRSSSeeds(t *testing.T) {
	trs := newTransports(t)

	for i, tr := range trs {
		right := trs[(i+1)%ipa.NumHelpers]
		a := tr.PRSS().Indexed([]byte("protocol/x"))
		b := right.PRSS().Indexed([]byte("protocol/x"))
		for r := ipa.RecordID(0); r < 10; r++ {
			_, ar := a.Generate(ff.Fp32BitPrime, r)
			bl, _ := b.Generate(ff.Fp32BitPrime, r)
			if ar != bl {
				t.Fatalf("%s-%s: record %d: PRSS mismatch",
					tr.Role(), right.Role(), r)
			}
		}
	}
}

func TestFrameOrder(t *testing.T) {
	trs := newTransports(t)
	id := ipa.NewQueryID()

	rec := newRecorder()
	if err := trs[1].Register(id, rec); err != nil {
		t.Fatal(err)
	}
	defer trs[1].Unregister(id)

	const n = 500
	var frames []*Frame
	for i := 0; i < n; i++ {
		frames = append(frames, &Frame{
			Kind:    KindData,
			Query:   id,
			Gate:    []byte("protocol/mul"),
			Record:  ipa.RecordID(i),
			Payload: []byte(fmt.Sprintf("msg %d", i)),
		})
	}
	ctx := context.Background()
	// Send in several batches.
	for i := 0; i < n; i += 100 {
		if err := trs[0].Send(ctx, ipa.H2, frames[i:i+100]...); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < n; i++ {
		d := rec.next(t)
		if d.from != ipa.H1 {
			t.Errorf("frame from %s, expected H1", d.from)
		}
		if d.f.Record != ipa.RecordID(i) ||
			string(d.f.Payload) != fmt.Sprintf("msg %d", i) {
			t.Fatalf("frame %d: unexpected frame %s", i, d.f)
		}
	}
	if trs[0].Stats().Sent.Load() == 0 {
		t.Errorf("no bytes sent")
	}
}

func TestParking(t *testing.T) {
	trs := newTransports(t)
	id := ipa.QueryIDFromSeed("parking")
	ctx := context.Background()

	err := trs[2].Send(ctx, ipa.H1, &Frame{
		Kind:   KindCredit,
		Query:  id,
		Gate:   []byte("protocol"),
		Record: 7,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Wait until the frame is parked.
	deadline := time.Now().Add(5 * time.Second)
	for {
		trs[0].m.Lock()
		n := trs[0].nparked
		trs[0].m.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("frame not parked")
		}
		time.Sleep(time.Millisecond)
	}

	rec := newRecorder()
	if err := trs[0].Register(id, rec); err != nil {
		t.Fatal(err)
	}
	d := rec.next(t)
	if d.from != ipa.H3 || d.f.Kind != KindCredit || d.f.Record != 7 {
		t.Errorf("unexpected parked frame %s from %s", d.f, d.from)
	}
	trs[0].Unregister(id)

	if err := trs[0].Register(id, rec); err == nil {
		t.Errorf("finished query registered again")
	}
}

func TestDisconnect(t *testing.T) {
	trs := newTransports(t)
	id := ipa.NewQueryID()

	var recs [ipa.NumHelpers]*recorder
	for i, tr := range trs {
		recs[i] = newRecorder()
		if err := tr.Register(id, recs[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := trs[0].Disconnect(ipa.H2); err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{0, 1} {
		err := recs[i].fail(t)
		if !errors.Is(err, ipa.ErrCommunication) {
			t.Errorf("%s: unexpected failure %v", trs[i].Role(), err)
		}
	}
	if trs[0].Err(ipa.H2) == nil {
		t.Errorf("H1-H2 not marked dead")
	}
	if trs[0].Err(ipa.H3) != nil {
		t.Errorf("H1-H3 marked dead")
	}

	err := trs[0].Send(context.Background(), ipa.H2, &Frame{
		Kind:  KindData,
		Query: id,
		Gate:  []byte("protocol"),
	})
	if !errors.Is(err, ipa.ErrCommunication) {
		t.Errorf("Send to dead peer: %v", err)
	}
	if err := trs[0].Register(ipa.NewQueryID(), newRecorder()); err == nil {
		t.Errorf("Register succeeded with dead peer")
	}
}

func TestInvalidFrame(t *testing.T) {
	c0, c1 := p2p.Pipe()
	go func() {
		c0.SendByte(42)
		c0.Flush()
	}()
	_, err := ReadFrame(c1)
	if !errors.Is(err, ipa.ErrCommunication) {
		t.Errorf("ReadFrame: expected communication error, got %v", err)
	}
}

func TestFrameCodec(t *testing.T) {
	c0, c1 := p2p.Pipe()
	frames := []*Frame{
		{
			Kind:    KindData,
			Query:   ipa.NewQueryID(),
			Gate:    []byte{0, 0, 0, 1},
			Record:  1 << 31,
			Payload: []byte{1, 2, 3},
		},
		{
			Kind:    KindAbort,
			Query:   ipa.NewQueryID(),
			Record:  ipa.NoRecord,
			Payload: []byte("aborted"),
		},
	}
	go func() {
		for _, f := range frames {
			WriteFrame(c0, f)
		}
		c0.Flush()
	}()
	for _, f := range frames {
		got, err := ReadFrame(c1)
		if err != nil {
			t.Fatal(err)
		}
		if got.String() != f.String() {
			t.Errorf("got %s, expected %s", got, f)
		}
	}
}
