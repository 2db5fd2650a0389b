//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package env

import (
	"bytes"
	"crypto/rand"
	"log"
	"strings"
	"testing"
)

func TestGetRandom(t *testing.T) {
	var config *Config
	if config.GetRandom() != rand.Reader {
		t.Errorf("nil config does not use crypto/rand")
	}
	r := bytes.NewReader(nil)
	config = &Config{Rand: r}
	if config.GetRandom() != r {
		t.Errorf("configured random not used")
	}
}

func TestDebugf(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{
		Logger: log.New(&buf, "", 0),
	}
	config.Debugf("hidden %d\n", 1)
	config.Logf("shown %d\n", 2)
	config.Verbose = true
	config.Debugf("debug %d\n", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Debugf printed without Verbose: %q", out)
	}
	if !strings.Contains(out, "shown 2") || !strings.Contains(out, "debug 3") {
		t.Errorf("unexpected output: %q", out)
	}
}
