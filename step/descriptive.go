//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package step

import (
	"strconv"
	"strings"
	"sync"
)

var (
	_ Namespace = &Descriptive{}
	_ Step      = &descriptiveStep{}
)

// Descriptive implements a namespace where the gate is the interned
// path string. Gates are assigned on first use. Descriptive is safe
// for concurrent use.
type Descriptive struct {
	root  string
	m     sync.RWMutex
	gates map[string]Gate
	names []string
}

// NewDescriptive creates a new descriptive namespace with the root
// segment name.
func NewDescriptive(root string) (*Descriptive, error) {
	if !ValidName(root) {
		return nil, malformed("invalid root name '%s'", root)
	}
	ns := &Descriptive{
		root:  root,
		gates: make(map[string]Gate),
	}
	ns.intern(root)
	return ns, nil
}

// Mode implements Namespace.Mode.
func (ns *Descriptive) Mode() Mode {
	return ModeDescriptive
}

// Root implements Namespace.Root.
func (ns *Descriptive) Root() Step {
	return &descriptiveStep{
		ns:   ns,
		path: ns.root,
	}
}

// Count returns the number of gates interned so far.
func (ns *Descriptive) Count() int {
	ns.m.RLock()
	defer ns.m.RUnlock()
	return len(ns.names)
}

// Name implements Namespace.Name.
func (ns *Descriptive) Name(g Gate) string {
	ns.m.RLock()
	defer ns.m.RUnlock()

	if int(g) < len(ns.names) {
		return ns.names[g]
	}
	return "{Gate " + strconv.Itoa(int(g)) + "}"
}

// Marshal implements Namespace.Marshal.
func (ns *Descriptive) Marshal(g Gate) []byte {
	return []byte(ns.Name(g))
}

// Unmarshal implements Namespace.Unmarshal. The path is validated
// and interned. Any well-formed path is accepted so helpers that
// disagree on the gate sequence are not detected at arrival: the
// mismatch surfaces as a receive timeout or as an unreceived message
// in Gateway.Finish.
func (ns *Descriptive) Unmarshal(data []byte) (Gate, error) {
	path := string(data)
	ns.m.RLock()
	g, ok := ns.gates[path]
	ns.m.RUnlock()
	if ok {
		return g, nil
	}
	if err := ns.validPath(path); err != nil {
		return 0, err
	}
	return ns.intern(path), nil
}

func (ns *Descriptive) validPath(path string) error {
	segments := strings.Split(path, string(Separator))
	if segments[0] != ns.root {
		return malformed("gate '%s' outside namespace '%s'", path, ns.root)
	}
	for _, seg := range segments[1:] {
		if ValidName(seg) {
			continue
		}
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || indexName(i) != seg {
			return malformed("gate '%s': invalid segment '%s'", path, seg)
		}
	}
	return nil
}

func (ns *Descriptive) intern(path string) Gate {
	ns.m.Lock()
	defer ns.m.Unlock()

	g, ok := ns.gates[path]
	if ok {
		return g
	}
	g = Gate(len(ns.names))
	ns.gates[path] = g
	ns.names = append(ns.names, path)
	return g
}

type descriptiveStep struct {
	ns   *Descriptive
	path string
	err  error
}

func (s *descriptiveStep) Narrow(name string) Step {
	if s.err != nil {
		return s
	}
	if !ValidName(name) {
		return &descriptiveStep{
			ns:   s.ns,
			path: s.path,
			err:  malformed("%s: invalid step name '%s'", s.path, name),
		}
	}
	return &descriptiveStep{
		ns:   s.ns,
		path: s.path + string(Separator) + name,
	}
}

func (s *descriptiveStep) Index(i int) Step {
	if s.err != nil {
		return s
	}
	if i < 0 {
		return &descriptiveStep{
			ns:   s.ns,
			path: s.path,
			err:  malformed("%s: negative step index %d", s.path, i),
		}
	}
	return &descriptiveStep{
		ns:   s.ns,
		path: s.path + string(Separator) + indexName(i),
	}
}

func (s *descriptiveStep) Gate() (Gate, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.ns.m.RLock()
	g, ok := s.ns.gates[s.path]
	s.ns.m.RUnlock()
	if ok {
		return g, nil
	}
	return s.ns.intern(s.path), nil
}

func (s *descriptiveStep) String() string {
	return s.path
}
