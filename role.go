//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package ipa implements the shared vocabulary of the three-helper
// secure multi-party computation core: helper roles, query and record
// identifiers, and the error taxonomy.
package ipa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/markkurossi/text/superscript"
)

// Role identifies one of the three helpers. The roles form a ring
// H1 -> H2 -> H3 -> H1 where each helper's right peer is the next
// helper in the ring.
type Role int

// Helper roles.
const (
	H1 Role = iota + 1
	H2
	H3
)

// NumHelpers is the number of helpers in a computation.
const NumHelpers = 3

// Roles lists all helper roles in ring order.
var Roles = [NumHelpers]Role{H1, H2, H3}

// RoleAt returns the role with the zero-based ring index idx.
func RoleAt(idx int) Role {
	return Role(((idx%NumHelpers)+NumHelpers)%NumHelpers + 1)
}

// ParseRole parses the role from its string representation. Both
// "H2" and "2" are accepted.
func ParseRole(s string) (Role, error) {
	v, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(s), "H"))
	if err != nil {
		return 0, fmt.Errorf("invalid role '%s'", s)
	}
	r := Role(v)
	if !r.Valid() {
		return 0, fmt.Errorf("invalid role '%s'", s)
	}
	return r, nil
}

// Valid tests if the role is one of H1, H2, or H3.
func (r Role) Valid() bool {
	return r >= H1 && r <= H3
}

// Index returns the zero-based ring index of the role.
func (r Role) Index() int {
	return int(r) - 1
}

// Left returns the previous helper in the ring.
func (r Role) Left() Role {
	return RoleAt(r.Index() - 1)
}

// Right returns the next helper in the ring.
func (r Role) Right() Role {
	return RoleAt(r.Index() + 1)
}

// Peers returns the left and right peers of the role.
func (r Role) Peers() [2]Role {
	return [2]Role{r.Left(), r.Right()}
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("{Role %d}", int(r))
	}
	return fmt.Sprintf("H%d", int(r))
}

// IDString returns the role as a compact superscript string.
func (r Role) IDString() string {
	return "H" + superscript.Itoa(int(r))
}

// QueryID identifies one query. All three helpers use the same ID
// for the same query.
type QueryID uuid.UUID

// NewQueryID creates a new random query ID.
func NewQueryID() QueryID {
	return QueryID(uuid.New())
}

// QueryIDFromSeed creates a deterministic query ID from the seed
// string. Helpers started with the same seed derive the same ID.
func QueryIDFromSeed(seed string) QueryID {
	return QueryID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("ipa/query/"+seed)))
}

// ParseQueryID parses the query ID from its canonical string form.
func ParseQueryID(s string) (QueryID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return QueryID{}, err
	}
	return QueryID(id), nil
}

// QueryIDFromBytes creates a query ID from its 16 byte binary form.
func QueryIDFromBytes(data []byte) (QueryID, error) {
	id, err := uuid.FromBytes(data)
	if err != nil {
		return QueryID{}, err
	}
	return QueryID(id), nil
}

// Bytes returns the 16 byte binary form of the query ID.
func (id QueryID) Bytes() []byte {
	return id[:]
}

func (id QueryID) String() string {
	return uuid.UUID(id).String()
}

// RecordID is the index of a record in a batch of parallel inputs.
type RecordID uint32
