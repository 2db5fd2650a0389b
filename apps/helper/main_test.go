//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/prss"
	"github.com/markkurossi/ipa/query"
	"github.com/markkurossi/ipa/world"
)

func TestTestInputs(t *testing.T) {
	f := ff.Fp31
	var seed prss.Seed
	seed[0] = 42

	var inputs [ipa.NumHelpers][]factors
	var expected []ff.Element
	for i, r := range ipa.Roles {
		in, exp, err := testInputs(f, r, seed, 50)
		if err != nil {
			t.Fatal(err)
		}
		if expected != nil {
			for idx := range exp {
				if exp[idx] != expected[idx] {
					t.Fatalf("%s: expected value %d mismatch", r, idx)
				}
			}
		}
		expected = exp
		inputs[i] = in
	}
	for idx := range expected {
		var a, b ff.Element
		for i := range inputs {
			a = f.Add(a, inputs[i][idx].a.Left)
			b = f.Add(b, inputs[i][idx].b.Left)
		}
		if f.Mul(a, b) != expected[idx] {
			t.Errorf("record %d: %d*%d != %d", idx, a, b, expected[idx])
		}
	}
}

func TestMultiplyReveal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	w, err := world.New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	config := query.DefaultConfig()
	config.Graph = testMultiplySteps

	var seed prss.Seed
	var inputs [ipa.NumHelpers][]factors
	var expected []ff.Element
	for i, r := range ipa.Roles {
		inputs[i], expected, err = testInputs(config.Field, r, seed, 100)
		if err != nil {
			t.Fatal(err)
		}
	}
	result := world.SemiHonest(ctx, w, config, inputs, multiplyReveal)
	if err := result.Err(); err != nil {
		t.Fatal(err)
	}
	for i, outputs := range result.Outputs {
		for idx, v := range outputs {
			if v != expected[idx] {
				t.Errorf("%s: record %d: got %d, expected %d",
					ipa.RoleAt(i), idx, v, expected[idx])
			}
		}
	}
}

func TestServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w, err := world.New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	e := newServer(w.Transport(ipa.H2))

	req := httptest.NewRequest(http.MethodGet, "/echo?msg=ready", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ready" {
		t.Errorf("/echo: %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/stats: %d", rec.Code)
	}
	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Role != "H2" {
		t.Errorf("/stats: role %q", stats.Role)
	}
	if stats.Sent == 0 || stats.Rcvd == 0 {
		t.Errorf("/stats: no handshake traffic: %+v", stats)
	}
}
