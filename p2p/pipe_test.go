//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"testing"
)

func TestMesh(t *testing.T) {
	const n = 3
	mesh := Mesh(n)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if (i == j) != (mesh[i][j] == nil) {
				t.Fatalf("mesh[%d][%d]=%v", i, j, mesh[i][j])
			}
		}
	}
	done := make(chan error)
	go func() {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				if err := mesh[i][j].SendUint32(i*n + j); err != nil {
					done <- err
					return
				}
				if err := mesh[i][j].Flush(); err != nil {
					done <- err
					return
				}
			}
		}
		done <- nil
	}()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			v, err := mesh[j][i].ReceiveUint32()
			if err != nil {
				t.Fatal(err)
			}
			if v != i*n+j {
				t.Errorf("%d->%d: got %d", i, j, v)
			}
		}
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	for i := range mesh {
		for _, conn := range mesh[i] {
			if conn != nil {
				conn.Close()
			}
		}
	}
}
