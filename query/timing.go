//
// Copyright (c) 2020-2026 Markku Rossi
//
// All rights reserved.
//

package query

import (
	"fmt"
	"io"
	"time"

	"github.com/markkurossi/ipa/p2p"
	"github.com/markkurossi/tabulate"
)

// FileSize specifies a byte count that is printed in human readable
// units.
type FileSize uint64

func (s FileSize) String() string {
	switch {
	case s > 1000*1000*1000*1000:
		return fmt.Sprintf("%dTB", s/(1000*1000*1000*1000))
	case s > 1000*1000*1000:
		return fmt.Sprintf("%dGB", s/(1000*1000*1000))
	case s > 1000*1000:
		return fmt.Sprintf("%dMB", s/(1000*1000))
	case s > 1000:
		return fmt.Sprintf("%dkB", s/1000)
	default:
		return fmt.Sprintf("%dB", s)
	}
}

// Timing records query phase samples and renders a profiling report.
type Timing struct {
	Start   time.Time
	Samples []*Sample
}

// NewTiming creates a new Timing instance.
func NewTiming() *Timing {
	return &Timing{
		Start: time.Now(),
	}
}

// Sample adds a timing sample ending now with the label and data
// columns.
func (t *Timing) Sample(label string, cols ...string) *Sample {
	start := t.Start
	if len(t.Samples) > 0 {
		start = t.Samples[len(t.Samples)-1].End
	}
	sample := &Sample{
		Label: label,
		Start: start,
		End:   time.Now(),
		Cols:  cols,
	}
	t.Samples = append(t.Samples, sample)
	return sample
}

// Total returns the duration from start to the end of the last
// sample.
func (t *Timing) Total() time.Duration {
	if len(t.Samples) == 0 {
		return 0
	}
	return t.Samples[len(t.Samples)-1].End.Sub(t.Start)
}

func percent(a, b float64) string {
	if b == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f%%", a/b*100)
}

// Print prints the profiling report with the I/O statistics to the
// writer.
func (t *Timing) Print(w io.Writer, stats p2p.IOStats) {
	if len(t.Samples) == 0 {
		return
	}

	sent := stats.Sent.Load()
	received := stats.Recvd.Load()
	flushed := stats.Flushed.Load()

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Phase").SetAlign(tabulate.ML)
	tab.Header("Time").SetAlign(tabulate.MR)
	tab.Header("%").SetAlign(tabulate.MR)
	tab.Header("Info").SetAlign(tabulate.MR)

	total := t.Total()
	for _, sample := range t.Samples {
		row := tab.Row()
		row.Column(sample.Label)

		duration := sample.End.Sub(sample.Start)
		row.Column(duration.String())
		row.Column(percent(float64(duration), float64(total)))
		for _, col := range sample.Cols {
			row.Column(col)
		}
	}
	row := tab.Row()
	row.Column("Total").SetFormat(tabulate.FmtBold)
	row.Column(total.String()).SetFormat(tabulate.FmtBold)
	row.Column("").SetFormat(tabulate.FmtBold)
	row.Column(FileSize(sent + received).String()).SetFormat(tabulate.FmtBold)

	xfer := float64(sent + received)

	row = tab.Row()
	row.Column("├╴Sent").SetFormat(tabulate.FmtItalic)
	row.Column("")
	row.Column(percent(float64(sent), xfer)).SetFormat(tabulate.FmtItalic)
	row.Column(FileSize(sent).String()).SetFormat(tabulate.FmtItalic)

	row = tab.Row()
	row.Column("├╴Rcvd").SetFormat(tabulate.FmtItalic)
	row.Column("")
	row.Column(percent(float64(received), xfer)).SetFormat(tabulate.FmtItalic)
	row.Column(FileSize(received).String()).SetFormat(tabulate.FmtItalic)

	row = tab.Row()
	row.Column("╰╴Flcd").SetFormat(tabulate.FmtItalic)
	row.Column("")
	row.Column("")
	row.Column(fmt.Sprintf("%v", flushed)).SetFormat(tabulate.FmtItalic)

	tab.Print(w)
}

// Sample contains information about one timing sample.
type Sample struct {
	Label string
	Start time.Time
	End   time.Time
	Cols  []string
}
