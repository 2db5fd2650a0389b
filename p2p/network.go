//
// Copyright (c) 2020-2026 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// DialRetry specifies the delay between connection attempts.
var DialRetry = 2 * time.Second

// Network implements peer-to-peer network. The peer with the lower
// ID dials and the peer with the higher ID accepts so each pair of
// peers has exactly one connection.
type Network struct {
	ID       int
	m        sync.Mutex
	Peers    map[int]*Peer
	addr     string
	listener net.Listener
	changed  chan struct{}
	closed   bool
}

// NewNetwork creats a new peer-to-peer network.
func NewNetwork(addr string, id int) (*Network, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	nw := &Network{
		ID:       id,
		Peers:    make(map[int]*Peer),
		addr:     addr,
		listener: listener,
		changed:  make(chan struct{}),
	}
	go nw.acceptLoop()
	return nw, nil
}

// Addr returns the network's listener address.
func (nw *Network) Addr() net.Addr {
	return nw.listener.Addr()
}

// Close closes the network and all peer connections.
func (nw *Network) Close() error {
	nw.m.Lock()
	nw.closed = true
	peers := nw.Peers
	nw.Peers = make(map[int]*Peer)
	nw.m.Unlock()

	err := nw.listener.Close()
	for _, peer := range peers {
		peer.Close()
	}
	return err
}

// AddPeer adds a peer to the network. If our ID is lower than the
// peer's ID, the function connects to the peer, retrying until the
// connection succeeds or the context is done. Otherwise the function
// returns immediately and the peer is added when it connects to us.
func (nw *Network) AddPeer(ctx context.Context, addr string, id int) error {
	if id == nw.ID {
		return fmt.Errorf("NW %d: can't add self as peer", nw.ID)
	}
	if id < nw.ID {
		return nil
	}
	for {
		// Check if we have already connected peer `id`.
		nw.m.Lock()
		_, ok := nw.Peers[id]
		closed := nw.closed
		nw.m.Unlock()
		if ok {
			return nil
		}
		if closed {
			return fmt.Errorf("NW %d: network closed", nw.ID)
		}

		log.Printf("NW %d: Connecting to peer %d...\n", nw.ID, id)
		var dialer net.Dialer
		nc, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			log.Printf("NW %d: Connect to %s failed, retrying in %s\n",
				nw.ID, addr, DialRetry)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(DialRetry):
			}
			continue
		}
		log.Printf("NW %d: Connected to %s\n", nw.ID, addr)
		conn := NewConn(nc)

		if err := conn.SendUint32(nw.ID); err != nil {
			conn.Close()
			return err
		}
		if err := conn.Flush(); err != nil {
			conn.Close()
			return err
		}
		return nw.newPeer(true, conn, id)
	}
}

// WaitPeers waits until the peers are connected.
func (nw *Network) WaitPeers(ctx context.Context, ids ...int) error {
	for {
		nw.m.Lock()
		changed := nw.changed
		var missing []int
		for _, id := range ids {
			if _, ok := nw.Peers[id]; !ok {
				missing = append(missing, id)
			}
		}
		nw.m.Unlock()

		if len(missing) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("NW %d: waiting for peers %v: %w",
				nw.ID, missing, ctx.Err())
		case <-changed:
		}
	}
}

// Peer returns the peer by its ID.
func (nw *Network) Peer(id int) (*Peer, bool) {
	nw.m.Lock()
	defer nw.m.Unlock()
	peer, ok := nw.Peers[id]
	return peer, ok
}

// Stats returns the I/O stats from the network.
func (nw *Network) Stats() IOStats {
	nw.m.Lock()
	defer nw.m.Unlock()

	result := NewIOStats()
	for _, peer := range nw.Peers {
		result = result.Add(peer.conn.Stats)
	}
	return result
}

func (nw *Network) acceptLoop() {
	for {
		nc, err := nw.listener.Accept()
		if err != nil {
			log.Printf("NW %d: accept failed: %s\n", nw.ID, err)
			return
		}
		conn := NewConn(nc)

		// Read peer ID.
		id, err := conn.ReceiveUint32()
		if err != nil {
			log.Printf("NW %d: I/O error: %s\n", nw.ID, err)
			conn.Close()
			continue
		}
		if id >= nw.ID {
			log.Printf("NW %d: unexpected connection from peer %d\n",
				nw.ID, id)
			conn.Close()
			continue
		}

		err = nw.newPeer(false, conn, id)
		if err != nil {
			log.Printf("inbound connection error: %s\n", err)
		}
	}
}

func (nw *Network) newPeer(client bool, conn *Conn, id int) error {
	nw.m.Lock()
	_, ok := nw.Peers[id]
	if ok || nw.closed {
		nw.m.Unlock()
		log.Printf("NW %d: peer %d already connected\n", nw.ID, id)
		return conn.Close()
	}
	nw.Peers[id] = &Peer{
		id:     id,
		conn:   conn,
		client: client,
	}
	close(nw.changed)
	nw.changed = make(chan struct{})
	nw.m.Unlock()

	log.Printf("NW %d: peer %d connected\n", nw.ID, id)
	return nil
}

// Peer implements a peer in the peer-to-peer network.
type Peer struct {
	id     int
	conn   *Conn
	client bool
}

// ID returns the peer ID.
func (peer *Peer) ID() int {
	return peer.id
}

// Conn returns the peer connection.
func (peer *Peer) Conn() *Conn {
	return peer.conn
}

// Client tests if we dialed the peer connection.
func (peer *Peer) Client() bool {
	return peer.client
}

// Close closes the peer connection.
func (peer *Peer) Close() error {
	return peer.conn.Close()
}
