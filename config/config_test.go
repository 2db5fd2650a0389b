//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/step"
)

const network = `
http = "127.0.0.1:8080"

[[peers]]
role = "H1"
addr = "127.0.0.1:9001"

[[peers]]
role = "H2"
addr = "127.0.0.1:9002"

[[peers]]
role = "H3"
addr = "127.0.0.1:9003"
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(network + `
[gateway]
capacity = 64
receive_timeout = "5s"

[query]
field = "Fp31"
steps = "compact"
active_work = 32
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTP != "127.0.0.1:8080" {
		t.Errorf("unexpected http %q", c.HTTP)
	}
	addr, err := c.PeerAddr(ipa.H2)
	if err != nil || addr != "127.0.0.1:9002" {
		t.Errorf("PeerAddr(H2)=%q, %v", addr, err)
	}
	gc := c.GatewayConfig()
	if gc.Capacity != 64 || gc.ReceiveTimeout != 5*time.Second {
		t.Errorf("unexpected gateway config %+v", gc)
	}
	// Defaults.
	if gc.SendTimeout != 30*time.Second || gc.DrainTimeout != 30*time.Second {
		t.Errorf("unexpected gateway timeouts %+v", gc)
	}
	qc, err := c.QueryConfig(step.Declare("protocol"))
	if err != nil {
		t.Fatal(err)
	}
	if err := qc.Validate(); err != nil {
		t.Fatal(err)
	}
	if qc.Field != ff.Fp31 || qc.Steps != step.ModeCompact ||
		qc.ActiveWork != 32 {
		t.Errorf("unexpected query config %+v", qc)
	}
}

func TestDefaults(t *testing.T) {
	c, err := Parse(strings.NewReader(network))
	if err != nil {
		t.Fatal(err)
	}
	qc, err := c.QueryConfig(nil)
	if err != nil {
		t.Fatal(err)
	}
	if qc.Field != ff.Fp32BitPrime || qc.Steps != step.ModeDescriptive ||
		qc.Gateway.Capacity != 1024 {
		t.Errorf("unexpected defaults %+v", qc)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("IPA_GATEWAY_CAPACITY", "256")
	t.Setenv("IPA_QUERY_FIELD", "Fp61BitPrime")

	c, err := Parse(strings.NewReader(network))
	if err != nil {
		t.Fatal(err)
	}
	if c.Gateway.Capacity != 256 {
		t.Errorf("capacity %d, expected 256", c.Gateway.Capacity)
	}
	if c.Query.Field != "Fp61BitPrime" {
		t.Errorf("field %s, expected Fp61BitPrime", c.Query.Field)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.toml")
	if err := os.WriteFile(path, []byte(network), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Peers) != 3 {
		t.Errorf("%d peers", len(c.Peers))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file loaded")
	}
}

var invalid = []string{
	// Missing peer.
	`
[[peers]]
role = "H1"
addr = "a:1"
`,
	// Duplicate role.
	strings.Replace(network, `"H3"`, `"H2"`, 1),
	// Invalid role.
	strings.Replace(network, `"H3"`, `"H4"`, 1),
	// Capacity below 2*active work.
	network + `
[gateway]
capacity = 8
[query]
active_work = 8
`,
	network + `
[query]
field = "Fp7"
`,
	network + `
[query]
steps = "short"
`,
}

func TestInvalid(t *testing.T) {
	for idx, data := range invalid {
		if _, err := Parse(strings.NewReader(data)); err == nil {
			t.Errorf("config %d: invalid config accepted", idx)
		}
	}
}
