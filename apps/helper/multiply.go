//
// multiply.go
//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/protocol"
	"github.com/markkurossi/ipa/prss"
	"github.com/markkurossi/ipa/query"
	"github.com/markkurossi/ipa/replicated"
	"github.com/markkurossi/ipa/step"
	"github.com/markkurossi/tabulate"
)

// Maximum number of mismatching records in the validation table.
const maxMismatches = 10

var testMultiplySteps = step.Declare(query.DefaultRoot,
	step.Declare("mul"),
	step.Declare("reveal"))

type factors struct {
	a, b replicated.Share
}

func multiplyReveal(c *protocol.Context, record ipa.RecordID,
	in factors) (ff.Element, error) {

	z, err := protocol.Multiply(c.Narrow("mul"), record, in.a, in.b)
	if err != nil {
		return 0, err
	}
	return protocol.Reveal(c.Narrow("reveal"), record, z)
}

// testInputs creates the test multiply inputs from the seed. All
// helpers derive the same values and shares from the same seed and
// each picks its own shares.
func testInputs(f *ff.Field, role ipa.Role, seed prss.Seed, n int) (
	[]factors, []ff.Element, error) {

	rand := prss.Stream(seed)
	inputs := make([]factors, n)
	expected := make([]ff.Element, n)

	for i := 0; i < n; i++ {
		a, err := f.Random(rand)
		if err != nil {
			return nil, nil, err
		}
		b, err := f.Random(rand)
		if err != nil {
			return nil, nil, err
		}
		as, err := replicated.Split(f, a, rand)
		if err != nil {
			return nil, nil, err
		}
		bs, err := replicated.Split(f, b, rand)
		if err != nil {
			return nil, nil, err
		}
		inputs[i] = factors{
			a: as[role.Index()],
			b: bs[role.Index()],
		}
		expected[i] = f.Mul(a, b)
	}
	return inputs, expected, nil
}

func testMultiply(ctx context.Context, q *query.Query, seed prss.Seed,
	n int, out io.Writer) error {

	f := q.Config().Field
	inputs, expected, err := testInputs(f, q.Role(), seed, n)
	if err != nil {
		return err
	}
	q.Timing.Sample("Inputs", fmt.Sprintf("%d records", n))

	outputs, err := query.Execute(ctx, q, inputs, multiplyReveal)
	if err != nil {
		return err
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Record").SetAlign(tabulate.MR)
	tab.Header("Expected").SetAlign(tabulate.MR)
	tab.Header("Actual").SetAlign(tabulate.MR)

	var mismatches int
	for i, v := range outputs {
		if v == expected[i] {
			continue
		}
		mismatches++
		if mismatches > maxMismatches {
			continue
		}
		row := tab.Row()
		row.Column(fmt.Sprintf("%d", i))
		row.Column(fmt.Sprintf("%d", expected[i]))
		row.Column(fmt.Sprintf("%d", v))
	}
	if mismatches > 0 {
		tab.Print(out)
		return fmt.Errorf("%d/%d records mismatch", mismatches, n)
	}
	fmt.Fprintf(out, "%d records valid\n", n)
	return nil
}
