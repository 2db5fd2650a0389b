//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package step

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/markkurossi/tabulate"
)

var (
	_ Namespace = &Compact{}
	_ Step      = &compactStep{}
)

// MaxCompactGates is the maximum number of gates in a compact step
// graph.
const MaxCompactGates = 1 << 24

// Node declares a step in a static step graph.
type Node struct {
	Name     string
	Fanout   int
	Indexed  bool
	Children []*Node
}

// Declare declares a named step with the child steps.
func Declare(name string, children ...*Node) *Node {
	return &Node{
		Name:     name,
		Children: children,
	}
}

// Indexed declares a named step with fanout index children 0...fanout-1.
// Each index child has the child steps.
func Indexed(name string, fanout int, children ...*Node) *Node {
	return &Node{
		Name:     name,
		Fanout:   fanout,
		Indexed:  true,
		Children: children,
	}
}

// vertex is an enumerated step. Named vertices have children and
// offsets. Indexed vertices have fanout copies of item.
type vertex struct {
	size     uint32
	names    []string
	children map[string]*vertex
	offsets  map[string]uint32
	fanout   int
	item     *vertex
}

// Compact implements a namespace over a static step graph which is
// enumerated ahead of execution. Gates are depth-first pre-order
// indices of the graph and narrowing is arithmetic over the
// precomputed subtree sizes. Compact is immutable and safe for
// concurrent use.
type Compact struct {
	root  *vertex
	names []string
}

// NewCompact creates a compact namespace from the step graph.
func NewCompact(root *Node) (*Compact, error) {
	if root == nil {
		return nil, malformed("no step graph")
	}
	if !ValidName(root.Name) {
		return nil, malformed("invalid root name '%s'", root.Name)
	}
	v, err := compile(root, root.Name)
	if err != nil {
		return nil, err
	}
	ns := &Compact{
		root:  v,
		names: make([]string, 0, v.size),
	}
	ns.enumerate(v, root.Name)
	if len(ns.names) != int(v.size) {
		return nil, fmt.Errorf("step graph enumeration mismatch: %d != %d",
			len(ns.names), v.size)
	}
	return ns, nil
}

func compile(n *Node, path string) (*vertex, error) {
	var names []string
	children := make(map[string]*vertex)
	offsets := make(map[string]uint32)
	var size uint64 = 1

	for _, c := range n.Children {
		if c == nil {
			return nil, malformed("%s: nil child step", path)
		}
		if !ValidName(c.Name) {
			return nil, malformed("%s: invalid step name '%s'", path, c.Name)
		}
		_, ok := children[c.Name]
		if ok {
			return nil, malformed("%s: duplicate step '%s'", path, c.Name)
		}
		cv, err := compile(c, path+string(Separator)+c.Name)
		if err != nil {
			return nil, err
		}
		names = append(names, c.Name)
		children[c.Name] = cv
		offsets[c.Name] = uint32(size)
		size += uint64(cv.size)
		if size > MaxCompactGates {
			return nil, malformed("%s: step graph too big", path)
		}
	}
	if !n.Indexed {
		return &vertex{
			size:     uint32(size),
			names:    names,
			children: children,
			offsets:  offsets,
		}, nil
	}
	if n.Fanout <= 0 {
		return nil, malformed("%s: invalid fanout %d", path, n.Fanout)
	}
	item := &vertex{
		size:     uint32(size),
		names:    names,
		children: children,
		offsets:  offsets,
	}
	size = 1 + uint64(n.Fanout)*uint64(item.size)
	if size > MaxCompactGates {
		return nil, malformed("%s: step graph too big", path)
	}
	return &vertex{
		size:   uint32(size),
		fanout: n.Fanout,
		item:   item,
	}, nil
}

func (ns *Compact) enumerate(v *vertex, path string) {
	ns.names = append(ns.names, path)
	if v.item != nil {
		for i := 0; i < v.fanout; i++ {
			ns.enumerate(v.item, path+string(Separator)+indexName(i))
		}
		return
	}
	for _, name := range v.names {
		ns.enumerate(v.children[name], path+string(Separator)+name)
	}
}

// Mode implements Namespace.Mode.
func (ns *Compact) Mode() Mode {
	return ModeCompact
}

// Count returns the number of gates in the namespace.
func (ns *Compact) Count() int {
	return len(ns.names)
}

// Root implements Namespace.Root.
func (ns *Compact) Root() Step {
	return &compactStep{
		ns: ns,
		v:  ns.root,
	}
}

// Name implements Namespace.Name.
func (ns *Compact) Name(g Gate) string {
	if int(g) < len(ns.names) {
		return ns.names[g]
	}
	return fmt.Sprintf("{Gate %d}", g)
}

// Marshal implements Namespace.Marshal.
func (ns *Compact) Marshal(g Gate) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(g))
	return buf[:]
}

// Unmarshal implements Namespace.Unmarshal.
func (ns *Compact) Unmarshal(data []byte) (Gate, error) {
	if len(data) != 4 {
		return 0, malformed("invalid compact gate length %d", len(data))
	}
	g := binary.BigEndian.Uint32(data)
	if int(g) >= len(ns.names) {
		return 0, malformed("unknown compact gate %d", g)
	}
	return Gate(g), nil
}

// Dump writes the enumerated gate table to the writer.
func (ns *Compact) Dump(w io.Writer) {
	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Gate").SetAlign(tabulate.MR)
	tab.Header("Step").SetAlign(tabulate.ML)

	for idx, name := range ns.names {
		row := tab.Row()
		row.Column(fmt.Sprintf("%d", idx))
		row.Column(name)
	}
	tab.Print(w)
}

type compactStep struct {
	ns   *Compact
	v    *vertex
	gate Gate
	err  error
}

func (s *compactStep) fail(format string, a ...interface{}) Step {
	return &compactStep{
		ns:   s.ns,
		v:    s.v,
		gate: s.gate,
		err: malformed("%s: %s", s.ns.Name(s.gate),
			fmt.Sprintf(format, a...)),
	}
}

func (s *compactStep) Narrow(name string) Step {
	if s.err != nil {
		return s
	}
	if !ValidName(name) {
		return s.fail("invalid step name '%s'", name)
	}
	child, ok := s.v.children[name]
	if !ok {
		return s.fail("undeclared step '%s'", name)
	}
	return &compactStep{
		ns:   s.ns,
		v:    child,
		gate: s.gate + Gate(s.v.offsets[name]),
	}
}

func (s *compactStep) Index(i int) Step {
	if s.err != nil {
		return s
	}
	if s.v.item == nil {
		return s.fail("step is not indexed")
	}
	if i < 0 || i >= s.v.fanout {
		return s.fail("step index %d out of range [0...%d[", i, s.v.fanout)
	}
	return &compactStep{
		ns:   s.ns,
		v:    s.v.item,
		gate: s.gate + 1 + Gate(uint32(i)*s.v.item.size),
	}
}

func (s *compactStep) Gate() (Gate, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.gate, nil
}

func (s *compactStep) String() string {
	return s.ns.Name(s.gate)
}
