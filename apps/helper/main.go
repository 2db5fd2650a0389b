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
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/config"
	"github.com/markkurossi/ipa/env"
	"github.com/markkurossi/ipa/p2p"
	"github.com/markkurossi/ipa/prss"
	"github.com/markkurossi/ipa/query"
	"github.com/markkurossi/ipa/transport"
)

func main() {
	fConfig := flag.String("config", "network.toml", "configuration `file`")
	fRole := flag.String("role", "", "helper role (H1, H2, H3)")
	fSeed := flag.String("seed", "", "test multiply query seed")
	fRecords := flag.Int("records", 1000, "test multiply records")
	fTimeout := flag.Duration("timeout", time.Minute, "connect timeout")
	fVerbose := flag.Bool("v", false, "verbose output")
	flag.Parse()

	log.SetFlags(0)

	role, err := ipa.ParseRole(*fRole)
	if err != nil {
		log.Fatal(err)
	}
	conf, err := config.Load(*fConfig)
	if err != nil {
		log.Fatal(err)
	}

	cfg := &env.Config{
		Verbose: *fVerbose || conf.Verbose,
		Logger:  log.New(os.Stderr, role.IDString()+": ", log.LstdFlags),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tr, nw, err := connect(ctx, role, conf, cfg, *fTimeout)
	if err != nil {
		log.Fatal(err)
	}
	defer nw.Close()
	defer tr.Close()

	if len(conf.HTTP) > 0 {
		srv := newServer(tr)
		go func() {
			err := srv.Start(conf.HTTP)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				cfg.Logf("http: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	if len(*fSeed) == 0 {
		cfg.Logf("serving\n")
		<-ctx.Done()
		return
	}

	qc, err := conf.QueryConfig(testMultiplySteps)
	if err != nil {
		log.Fatal(err)
	}
	q, err := query.New(ipa.QueryIDFromSeed(*fSeed), tr, qc, cfg)
	if err != nil {
		log.Fatal(err)
	}
	cfg.Logf("query %s\n", q.ID())

	seed := prss.Seed(sha256.Sum256([]byte(*fSeed)))
	err = testMultiply(ctx, q, seed, *fRecords, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	q.Timing.Print(os.Stdout, tr.Stats())
}

// connect creates the TCP mesh and the transport for the role. The
// network peer IDs are the helper role numbers.
func connect(ctx context.Context, role ipa.Role, conf *config.Config,
	cfg *env.Config, timeout time.Duration) (
	*transport.Transport, *p2p.Network, error) {

	addr, err := conf.PeerAddr(role)
	if err != nil {
		return nil, nil, err
	}
	nw, err := p2p.NewNetwork(addr, int(role))
	if err != nil {
		return nil, nil, err
	}
	cfg.Debugf("listening at %s\n", nw.Addr())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var ids []int
	for _, r := range role.Peers() {
		peerAddr, err := conf.PeerAddr(r)
		if err != nil {
			nw.Close()
			return nil, nil, err
		}
		if err := nw.AddPeer(ctx, peerAddr, int(r)); err != nil {
			nw.Close()
			return nil, nil, err
		}
		ids = append(ids, int(r))
	}
	if err := nw.WaitPeers(ctx, ids...); err != nil {
		nw.Close()
		return nil, nil, err
	}

	conns := make(map[ipa.Role]*p2p.Conn)
	for _, r := range role.Peers() {
		peer, ok := nw.Peer(int(r))
		if !ok {
			nw.Close()
			return nil, nil, fmt.Errorf("no connection to %s", r)
		}
		conns[r] = peer.Conn()
	}
	tr, err := transport.New(ctx, role, cfg, conns)
	if err != nil {
		nw.Close()
		return nil, nil, err
	}
	cfg.Logf("connected to %s and %s\n", role.Left(), role.Right())

	return tr, nw, nil
}

// Stats defines the helper I/O statistics.
type Stats struct {
	Role    string `json:"role"`
	Sent    uint64 `json:"sent"`
	Rcvd    uint64 `json:"rcvd"`
	Flushed uint64 `json:"flushed"`
}

func newServer(tr *transport.Transport) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/echo", func(c echo.Context) error {
		return c.String(http.StatusOK, c.QueryParam("msg"))
	})
	e.GET("/stats", func(c echo.Context) error {
		stats := tr.Stats()
		return c.JSON(http.StatusOK, &Stats{
			Role:    tr.Role().String(),
			Sent:    stats.Sent.Load(),
			Rcvd:    stats.Recvd.Load(),
			Flushed: stats.Flushed.Load(),
		})
	})
	return e
}
