/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package telnet

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRingFIFOOrdering(t *testing.T) {
	r := newRing()
	n := r.put([]byte("hello"))
	require.Equal(t, 5, n)

	buf := make([]byte, 3)
	n, err := r.get(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "hel", string(buf[:n]))

	n, err = r.get(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "lo", string(buf[:n]))
}

func TestRingGetBlocksUntilPut(t *testing.T) {
	r := newRing()
	done := make(chan struct{})
	var got []byte
	go func() {
		defer close(done)
		buf := make([]byte, 4)
		n, err := r.get(buf)
		if err == nil {
			got = buf[:n]
		}
	}()

	select {
	case <-done:
		t.Fatal("get returned before any data was put")
	case <-time.After(20 * time.Millisecond):
	}

	r.put([]byte("abcd"))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("get did not unblock after put")
	}
	require.Equal(t, "abcd", string(got))
}

func TestRingCloseUnblocksPendingGetWithEOF(t *testing.T) {
	r := newRing()
	errCh := make(chan error, 1)
	go func() {
		_, err := r.get(make([]byte, 1))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	r.closeRing()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("get did not unblock after close")
	}
}

func TestRingEOFDrainsRemainingDataFirst(t *testing.T) {
	r := newRing()
	r.put([]byte("xy"))
	r.setEOF(nil)

	buf := make([]byte, 10)
	n, err := r.get(buf)
	require.NoError(t, err)
	require.Equal(t, "xy", string(buf[:n]))

	n, err = r.get(buf)
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestRingPutBlocksOnFullRingInsteadOfDropping(t *testing.T) {
	r := newRing()
	filler := make([]byte, ringSize)
	for i := range filler {
		filler[i] = byte(i)
	}
	require.Equal(t, ringSize, r.put(filler))

	extra := []byte{0xAA, 0xBB, 0xCC}
	putDone := make(chan int, 1)
	go func() { putDone <- r.put(extra) }()

	select {
	case <-putDone:
		t.Fatal("put on a full ring returned instead of blocking")
	case <-time.After(20 * time.Millisecond):
	}

	// Drain exactly len(extra) bytes to make room; the blocked put should
	// then complete and write every byte of extra, none dropped.
	drained := make([]byte, len(extra))
	n, err := r.get(drained)
	require.NoError(t, err)
	require.Equal(t, len(extra), n)

	select {
	case got := <-putDone:
		require.Equal(t, len(extra), got)
	case <-time.After(time.Second):
		t.Fatal("put did not unblock after space was freed")
	}

	rest := make([]byte, ringSize)
	n, err = r.get(rest)
	require.NoError(t, err)
	require.Equal(t, ringSize, n)
	require.Equal(t, extra, rest[ringSize-len(extra):ringSize])
}

func TestRingPutUnblocksOnClose(t *testing.T) {
	r := newRing()
	r.put(make([]byte, ringSize))

	putDone := make(chan int, 1)
	go func() { putDone <- r.put([]byte{1, 2, 3}) }()

	time.Sleep(20 * time.Millisecond)
	r.closeRing()

	select {
	case n := <-putDone:
		require.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("put did not unblock after close")
	}
}

func TestConnThreadedRoundTripsApplicationData(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewConn(server, Threaded)
	cc := NewConn(client, Threaded)
	defer sc.Close()
	defer cc.Close()

	go func() { _, _ = sc.Write([]byte("hello")) }()

	buf := make([]byte, 5)
	n, err := readFull(cc, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestConnThreadedNegotiatesEchoAtStartup(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 3)
		n, err := io.ReadFull(client, buf)
		require.NoError(t, err)
		require.Equal(t, []byte{IAC, WILL, OptEcho}, buf[:n])
	}()

	sc := NewConn(server, Threaded, EchoHandler{})
	defer sc.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("peer never observed the startup WILL ECHO")
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server, Threaded)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestConnCloseUnblocksPendingRead(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server, Threaded)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Read(make([]byte, 1))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("read did not unblock after close")
	}
}

func readFull(c *Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
