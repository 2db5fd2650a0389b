//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package ipa

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the core wraps exactly one of
// these so that callers can classify failures with errors.Is.
var (
	// ErrMalformed reports a protocol malformation: a gate that does
	// not exist, parties disagreeing on the gate sequence, or
	// unexpected and duplicate messages.
	ErrMalformed = errors.New("protocol malformation")

	// ErrCommunication reports a connection loss, a timeout, or a
	// message that could not be deserialized.
	ErrCommunication = errors.New("communication failure")

	// ErrField reports an arithmetic or field violation: a value out
	// of the field range, or inconsistent or missing shares.
	ErrField = errors.New("field violation")

	// ErrAborted reports that the query was aborted, locally or by a
	// peer helper.
	ErrAborted = errors.New("query aborted")

	// ErrDuplicateSend reports a second send for the same (gate,
	// record, receiver) tuple.
	ErrDuplicateSend = errors.New("duplicate send")
)

// NoRecord marks an Error that is not bound to a record.
const NoRecord = ^RecordID(0)

// Error describes a failure at a specific point of the protocol.
type Error struct {
	Kind   error
	Gate   string
	Record RecordID
	Peer   Role
	Err    error
}

// Errorf creates a new error of the kind with a formatted cause.
func Errorf(kind error, format string, a ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Record: NoRecord,
		Err:    fmt.Errorf(format, a...),
	}
}

func (e *Error) Error() string {
	var sb strings.Builder

	if len(e.Gate) > 0 {
		fmt.Fprintf(&sb, "gate %s", e.Gate)
	}
	if e.Record != NoRecord {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "record %d", e.Record)
	}
	if e.Peer.Valid() {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "peer %s", e.Peer)
	}
	if sb.Len() > 0 {
		sb.WriteString(": ")
	}
	if e.Kind != nil {
		sb.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		if e.Kind != nil {
			sb.WriteString(": ")
		}
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the error kind and the cause.
func (e *Error) Unwrap() []error {
	var result []error
	if e.Kind != nil {
		result = append(result, e.Kind)
	}
	if e.Err != nil {
		result = append(result, e.Err)
	}
	return result
}

// At returns a copy of the error annotated with the gate, record,
// and peer. Fields already set in e are kept.
func (e *Error) At(gate string, record RecordID, peer Role) *Error {
	n := *e
	if len(n.Gate) == 0 {
		n.Gate = gate
	}
	if n.Record == NoRecord {
		n.Record = record
	}
	if !n.Peer.Valid() {
		n.Peer = peer
	}
	return &n
}
