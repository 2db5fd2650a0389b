//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package transport

import (
	"fmt"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/p2p"
)

// Kind specifies frame types.
type Kind byte

// Frame kinds.
const (
	KindData Kind = iota + 1
	KindCredit
	KindAbort
)

var kinds = map[Kind]string{
	KindData:   "data",
	KindCredit: "credit",
	KindAbort:  "abort",
}

func (k Kind) String() string {
	name, ok := kinds[k]
	if ok {
		return name
	}
	return fmt.Sprintf("{Kind %d}", byte(k))
}

// Frame is a unit of inter-helper communication. Data frames carry
// the payload of one (gate, record) message. Credit frames return
// Record credits of the gate's stream to the sender. Abort frames
// carry the abort cause in Payload.
type Frame struct {
	Kind    Kind
	Query   ipa.QueryID
	Gate    []byte
	Record  ipa.RecordID
	Payload []byte
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s %s[%s:%d] %d bytes",
		f.Kind, f.Query, f.Gate, f.Record, len(f.Payload))
}

// WriteFrame writes the frame to the connection. The frame is not
// flushed.
func WriteFrame(conn *p2p.Conn, f *Frame) error {
	if err := conn.SendByte(byte(f.Kind)); err != nil {
		return err
	}
	if err := conn.SendFixed(f.Query.Bytes()); err != nil {
		return err
	}
	if err := conn.SendData(f.Gate); err != nil {
		return err
	}
	if err := conn.SendUint32(int(f.Record)); err != nil {
		return err
	}
	return conn.SendData(f.Payload)
}

// ReadFrame reads a frame from the connection.
func ReadFrame(conn *p2p.Conn) (*Frame, error) {
	k, err := conn.ReceiveByte()
	if err != nil {
		return nil, err
	}
	f := &Frame{
		Kind: Kind(k),
	}
	switch f.Kind {
	case KindData, KindCredit, KindAbort:
	default:
		return nil, ipa.Errorf(ipa.ErrCommunication, "invalid frame kind %s",
			f.Kind)
	}
	var id [16]byte
	if err := conn.ReceiveFixed(id[:]); err != nil {
		return nil, err
	}
	f.Query, err = ipa.QueryIDFromBytes(id[:])
	if err != nil {
		return nil, ipa.Errorf(ipa.ErrCommunication, "invalid query ID: %v",
			err)
	}
	f.Gate, err = conn.ReceiveData()
	if err != nil {
		return nil, err
	}
	if len(f.Gate) == 0 && f.Kind != KindAbort {
		return nil, ipa.Errorf(ipa.ErrCommunication, "%s frame without gate",
			f.Kind)
	}
	record, err := conn.ReceiveUint32()
	if err != nil {
		return nil, err
	}
	f.Record = ipa.RecordID(record)
	f.Payload, err = conn.ReceiveData()
	if err != nil {
		return nil, err
	}
	return f, nil
}
