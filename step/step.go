//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package step implements the step namespace. A Step is a
// hierarchical path identifying a point in the protocol's call graph
// and a Gate is its flattened, query-unique index. Two namespace
// variants are provided: Descriptive interns path strings at run
// time and Compact enumerates a statically declared step graph ahead
// of execution.
package step

import (
	"fmt"
	"strconv"

	"github.com/markkurossi/ipa"
)

// Gate is the dense index of a step within one query.
type Gate uint32

// Mode specifies the namespace variant.
type Mode int

// Namespace modes.
const (
	ModeDescriptive Mode = iota
	ModeCompact
)

var modes = map[Mode]string{
	ModeDescriptive: "descriptive",
	ModeCompact:     "compact",
}

func (m Mode) String() string {
	name, ok := modes[m]
	if ok {
		return name
	}
	return fmt.Sprintf("{Mode %d}", int(m))
}

// ParseMode parses the namespace mode name.
func ParseMode(name string) (Mode, error) {
	for k, v := range modes {
		if v == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown step mode '%s'", name)
}

// Step identifies a position in the protocol's call tree. Steps are
// immutable and safe for concurrent use.
type Step interface {
	// Narrow returns the child step with the segment name.
	Narrow(name string) Step

	// Index returns the child step with the index segment i.
	Index(i int) Step

	// Gate returns the gate of the step. The function returns an
	// ErrMalformed error if the step was created by an invalid
	// narrowing.
	Gate() (Gate, error)

	// String returns the step path.
	String() string
}

// Namespace maps steps to gates.
type Namespace interface {
	// Mode returns the namespace variant.
	Mode() Mode

	// Root returns the root step.
	Root() Step

	// Name returns the path name of the gate.
	Name(g Gate) string

	// Marshal returns the wire identity of the gate. The wire
	// identity is the same in all helpers for the same step.
	Marshal(g Gate) []byte

	// Unmarshal maps a peer's wire identity to the local gate.
	Unmarshal(data []byte) (Gate, error)
}

// Separator separates path segments.
const Separator = '/'

// ValidName tests if the segment name is valid. Names start with a
// letter or underscore and contain only letters, digits, underscores,
// and hyphens. Since index segments are decimal numbers, named and
// indexed segments never collide.
func ValidName(name string) bool {
	if len(name) == 0 {
		return false
	}
	for idx, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case idx > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func indexName(i int) string {
	return strconv.Itoa(i)
}

func malformed(format string, a ...interface{}) error {
	return ipa.Errorf(ipa.ErrMalformed, format, a...)
}
