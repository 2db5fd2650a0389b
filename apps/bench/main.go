//
// main.go
//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/env"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/protocol"
	"github.com/markkurossi/ipa/query"
	"github.com/markkurossi/ipa/replicated"
	"github.com/markkurossi/ipa/step"
	"github.com/markkurossi/ipa/world"
)

var steps = step.Declare(query.DefaultRoot,
	step.Declare("mul"))

func main() {
	fRecords := flag.Int("records", 100000, "number of records")
	fField := flag.String("field", ff.Fp32BitPrime.Name(), "field type")
	fSteps := flag.String("steps", step.ModeDescriptive.String(), "step mode")
	fActive := flag.Int("active", query.DefaultActiveWork, "active work")
	fCapacity := flag.Int("capacity", 0, "gateway capacity")
	fTimeout := flag.Duration("timeout", 5*time.Minute, "benchmark timeout")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to `file`")
	fVerbose := flag.Bool("v", false, "verbose output")
	flag.Parse()

	log.SetFlags(0)

	if len(*cpuprofile) > 0 {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	config := query.DefaultConfig()
	field, err := ff.ByName(*fField)
	if err != nil {
		log.Fatal(err)
	}
	config.Field = field
	config.Steps, err = step.ParseMode(*fSteps)
	if err != nil {
		log.Fatal(err)
	}
	config.Graph = steps
	config.ActiveWork = *fActive
	if *fCapacity > 0 {
		config.Gateway.Capacity = *fCapacity
	} else {
		config.Gateway.Capacity = 2 * config.ActiveWork
	}

	if err := bench(config, *fRecords, *fTimeout, *fVerbose); err != nil {
		log.Fatal(err)
	}
}

func bench(config query.Config, n int, timeout time.Duration,
	verbose bool) error {

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	w, err := world.New(ctx, &env.Config{
		Verbose: verbose,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	f := config.Field
	xs := make([]ff.Element, n)
	ys := make([]ff.Element, n)
	for i := range xs {
		xs[i], err = f.Random(rand.Reader)
		if err != nil {
			return err
		}
		ys[i], err = f.Random(rand.Reader)
		if err != nil {
			return err
		}
	}
	xsh, err := world.ShareInputs(f, xs, rand.Reader)
	if err != nil {
		return err
	}
	ysh, err := world.ShareInputs(f, ys, rand.Reader)
	if err != nil {
		return err
	}
	var inputs [ipa.NumHelpers][][2]replicated.Share
	for i := range inputs {
		inputs[i] = make([][2]replicated.Share, n)
		for idx := range inputs[i] {
			inputs[i][idx] = [2]replicated.Share{xsh[i][idx], ysh[i][idx]}
		}
	}

	fmt.Printf("Multiply: %d records, %s, %s steps, active work %d, "+
		"capacity %d\n", n, f, config.Steps, config.ActiveWork,
		config.Gateway.Capacity)

	start := time.Now()
	result := world.SemiHonest(ctx, w, config, inputs, multiply)
	if err := result.Err(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	values, err := world.Reconstruct(f, result.Outputs)
	if err != nil {
		return err
	}
	for i, v := range values {
		if v != f.Mul(xs[i], ys[i]) {
			return fmt.Errorf("record %d: invalid product %d", i, v)
		}
	}
	fmt.Printf("Elapsed: %s, %.0f records/s\n", elapsed,
		float64(n)/elapsed.Seconds())

	q := result.Queries[0]
	q.Timing.Print(os.Stdout, w.Transport(q.Role()).Stats())

	return nil
}

func multiply(c *protocol.Context, record ipa.RecordID,
	in [2]replicated.Share) (replicated.Share, error) {

	return protocol.Multiply(c.Narrow("mul"), record, in[0], in[1])
}
