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

package tftp

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/netclassic/netproto/neterr"
)

// AccessMode restricts which request types the server will honor.
type AccessMode int

// Access modes a ServerConfig can enforce.
const (
	GetOnly AccessMode = iota
	PutOnly
	GetAndPut
)

// ServerConfig holds a Server's policy knobs.
type ServerConfig struct {
	// Addr is the well-known listen address, e.g. ":69".
	Addr string
	// Root is the directory RRQ (read) paths are resolved against.
	Root string
	// WriteDir is the directory WRQ (write) paths are resolved against.
	// Defaults to Root when empty.
	WriteDir string
	Mode     AccessMode
	Client   ClientConfig
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.WriteDir == "" {
		c.WriteDir = c.Root
	}
	c.Client = c.Client.withDefaults()
	return c
}

// Server is a concurrent multi-transfer TFTP server: one acceptor
// goroutine dispatches each RRQ/WRQ to a fresh transfer goroutine bound
// to its own ephemeral UDP socket (the transfer's TID).
type Server struct {
	cfg   ServerConfig
	conn  *net.UDPConn
	Stats *Stats

	closeOnce sync.Once
	closing   chan struct{}
	eg        errgroup.Group
}

// NewServer binds the well-known listening socket.
func NewServer(cfg ServerConfig) (*Server, error) {
	cfg = cfg.withDefaults()
	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, neterr.New(neterr.InvalidArgument, "tftp.NewServer", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, neterr.New(neterr.Io, "tftp.NewServer", err)
	}
	return &Server{
		cfg:     cfg,
		conn:    conn,
		Stats:   NewStats(),
		closing: make(chan struct{}),
	}, nil
}

// LocalAddr returns the server's well-known listening address.
func (s *Server) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Serve runs the accept loop until Close is called. It always returns a
// non-nil error; a clean shutdown returns a Closed-kind error.
func (s *Server) Serve() error {
	buf := make([]byte, MaxDataSize+64)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closing:
				return neterr.New(neterr.Closed, "tftp.Serve", nil)
			default:
			}
			return neterr.New(neterr.Io, "tftp.Serve", err)
		}

		req, derr := DecodePacket(buf[:n])
		if derr != nil {
			log.Debugf("tftp: malformed request from %s: %v", from, derr)
			continue
		}

		switch req.Op {
		case OpRRQ, OpWRQ:
			reqCopy := *req
			peer := *from
			s.eg.Go(func() error {
				s.dispatch(&reqCopy, &peer)
				return nil
			})
		default:
			s.sendErrorFrom(s.conn, from, ErrIllegalOp, fmt.Sprintf("unexpected opcode %d on well-known port", req.Op))
		}
	}
}

// Close stops the accept loop and every in-flight transfer. Idempotent.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.conn.Close()
	})
	_ = s.eg.Wait()
	return nil
}

func (s *Server) sendErrorFrom(conn *net.UDPConn, to *net.UDPAddr, code ErrorCode, msg string) {
	pkt := (&Packet{Op: OpERROR, Code: code, Message: msg}).Encode()
	_, _ = conn.WriteTo(pkt, to)
}

// resolvePath canonicalizes name against root and rejects any path that
// escapes it after cleaning (Policy violation per RFC 1350 §5 code 2).
func resolvePath(root, name string) (string, error) {
	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		return "", neterr.New(neterr.Io, "tftp.resolvePath", err)
	}
	joined := filepath.Join(cleanRoot, name)
	rel, err := filepath.Rel(cleanRoot, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", neterr.New(neterr.Policy, "tftp.resolvePath", fmt.Errorf("path %q escapes root", name))
	}
	return joined, nil
}

func (s *Server) dispatch(req *Packet, peer *net.UDPAddr) {
	s.Stats.IncActiveTransfers()
	defer s.Stats.DecActiveTransfers()
	start := time.Now()
	defer func() { s.Stats.ObserveDuration(time.Since(start)) }()

	transferConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: s.conn.LocalAddr().(*net.UDPAddr).IP})
	if err != nil {
		log.Errorf("tftp: failed to bind transfer socket for %s: %v", peer, err)
		return
	}
	defer transferConn.Close()

	go func() {
		<-s.closing
		transferConn.Close()
	}()

	switch req.Op {
	case OpRRQ:
		if s.cfg.Mode == PutOnly {
			s.sendErrorFrom(transferConn, peer, ErrAccessViolation, "server is write-only")
			return
		}
		path, perr := resolvePath(s.cfg.Root, req.Filename)
		if perr != nil {
			s.sendErrorFrom(transferConn, peer, ErrAccessViolation, "access violation")
			return
		}
		f, ferr := os.Open(path)
		if ferr != nil {
			s.sendErrorFrom(transferConn, peer, ErrFileNotFound, ferr.Error())
			return
		}
		defer f.Close()

		if err := s.serveRead(transferConn, peer, f, req.Mode); err != nil {
			log.Debugf("tftp: RRQ %s from %s failed: %v", req.Filename, peer, err)
			s.Stats.IncFailures()
			return
		}
		s.Stats.IncTransfers()

	case OpWRQ:
		if s.cfg.Mode == GetOnly {
			s.sendErrorFrom(transferConn, peer, ErrAccessViolation, "server is read-only")
			return
		}
		path, perr := resolvePath(s.cfg.WriteDir, req.Filename)
		if perr != nil {
			s.sendErrorFrom(transferConn, peer, ErrAccessViolation, "access violation")
			return
		}
		if _, statErr := os.Stat(path); statErr == nil {
			s.sendErrorFrom(transferConn, peer, ErrFileExists, "file already exists")
			return
		}
		f, ferr := os.Create(path)
		if ferr != nil {
			s.sendErrorFrom(transferConn, peer, ErrAccessViolation, ferr.Error())
			return
		}
		defer f.Close()

		if err := s.serveWrite(transferConn, peer, f, req.Mode); err != nil {
			log.Debugf("tftp: WRQ %s from %s failed: %v", req.Filename, peer, err)
			s.Stats.IncFailures()
			os.Remove(path)
			return
		}
		s.Stats.IncTransfers()
	}
}

// serveRead plays the sender role of the lockstep protocol: it owns the
// transfer's TID (transferConn's ephemeral port) and drives DATA/ACK
// exchange with peer, the client's already-bound address.
func (s *Server) serveRead(transferConn *net.UDPConn, peer *net.UDPAddr, src *os.File, mode Mode) error {
	return sendFromReader(transferConn, peer, src, mode, s.cfg.Client)
}

// serveWrite plays the receiver role, symmetric to serveRead.
func (s *Server) serveWrite(transferConn *net.UDPConn, peer *net.UDPAddr, dst *os.File, mode Mode) error {
	return receiveToWriter(transferConn, peer, dst, mode, s.cfg.Client)
}

// sendFromReader answers an already-accepted RRQ: unlike the WRQ sender
// (client.go's SendFile, which must await ACK(0) before its first DATA),
// the RRQ responder owns the data and sends DATA(1) immediately, then
// waits for each ACK before sending the next block.
func sendFromReader(conn *net.UDPConn, peer *net.UDPAddr, r io.Reader, mode Mode, cfg ClientConfig) error {
	cfg = cfg.withDefaults()
	data, err := io.ReadAll(r)
	if err != nil {
		return neterr.New(neterr.Io, "tftp.sendFromReader", err)
	}
	if mode == ModeNetASCII {
		data = netasciiEncode(data)
	}

	firstChunk := data
	if len(firstChunk) > MaxDataSize {
		firstChunk = firstChunk[:MaxDataSize]
	}
	lastChunkShort := len(firstChunk) < MaxDataSize
	sent := len(firstChunk)
	block := uint16(1)
	timeouts := 0

	lastSent := (&Packet{Op: OpDATA, Block: block, Data: firstChunk}).Encode()
	if _, werr := conn.WriteTo(lastSent, peer); werr != nil {
		return neterr.New(neterr.Io, "tftp.sendFromReader", werr)
	}

	buf := make([]byte, 4)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.Timeout)); err != nil {
			return neterr.New(neterr.Io, "tftp.sendFromReader", err)
		}
		n, from, rerr := conn.ReadFromUDP(buf)
		if rerr != nil {
			if isTimeout(rerr) {
				timeouts++
				if timeouts >= cfg.MaxTimeouts {
					return neterr.New(neterr.Timeout, "tftp.sendFromReader", rerr)
				}
				if lastSent != nil {
					_, _ = conn.WriteTo(lastSent, peer)
				}
				continue
			}
			return neterr.New(neterr.Io, "tftp.sendFromReader", rerr)
		}
		timeouts = 0

		if from.Port != peer.Port || !from.IP.Equal(peer.IP) {
			errPkt := (&Packet{Op: OpERROR, Code: ErrUnknownTID, Message: "unknown TID"}).Encode()
			_, _ = conn.WriteTo(errPkt, from)
			continue
		}

		p, derr := DecodePacket(buf[:n])
		if derr != nil {
			return derr
		}

		switch p.Op {
		case OpACK:
			if p.Block != block {
				continue
			}
			if lastChunkShort {
				return nil
			}
			block++
			start := sent
			end := start + MaxDataSize
			if end > len(data) {
				end = len(data)
			}
			chunk := data[start:end]
			sent = end
			lastChunkShort = len(chunk) < MaxDataSize

			dataPkt := (&Packet{Op: OpDATA, Block: block, Data: chunk}).Encode()
			if _, werr := conn.WriteTo(dataPkt, peer); werr != nil {
				return neterr.New(neterr.Io, "tftp.sendFromReader", werr)
			}
			lastSent = dataPkt

		case OpERROR:
			return neterr.New(neterr.Peer, "tftp.sendFromReader", fmt.Errorf("tftp error %d: %s", p.Code, p.Message))

		default:
			return neterr.New(neterr.Protocol, "tftp.sendFromReader", fmt.Errorf("unexpected opcode %d", p.Op))
		}
	}
}

func receiveToWriter(conn *net.UDPConn, peer *net.UDPAddr, w io.Writer, mode Mode, cfg ClientConfig) error {
	cfg = cfg.withDefaults()
	expected := uint16(1)
	timeouts := 0
	var nstate netasciiState
	buf := make([]byte, MaxDataSize+4)

	ack0 := (&Packet{Op: OpACK, Block: 0}).Encode()
	if _, err := conn.WriteTo(ack0, peer); err != nil {
		return neterr.New(neterr.Io, "tftp.receiveToWriter", err)
	}
	lastSent := ack0

	for {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.Timeout)); err != nil {
			return neterr.New(neterr.Io, "tftp.receiveToWriter", err)
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				timeouts++
				if timeouts >= cfg.MaxTimeouts {
					return neterr.New(neterr.Timeout, "tftp.receiveToWriter", err)
				}
				_, _ = conn.WriteTo(lastSent, peer)
				continue
			}
			return neterr.New(neterr.Io, "tftp.receiveToWriter", err)
		}
		timeouts = 0

		if from.Port != peer.Port || !from.IP.Equal(peer.IP) {
			errPkt := (&Packet{Op: OpERROR, Code: ErrUnknownTID, Message: "unknown TID"}).Encode()
			_, _ = conn.WriteTo(errPkt, from)
			continue
		}

		p, derr := DecodePacket(buf[:n])
		if derr != nil {
			return derr
		}

		switch p.Op {
		case OpDATA:
			switch p.Block {
			case expected:
				payload := p.Data
				if mode == ModeNetASCII {
					payload = nstate.decode(payload)
				}
				if _, werr := w.Write(payload); werr != nil {
					return neterr.New(neterr.Io, "tftp.receiveToWriter", werr)
				}
				ack := (&Packet{Op: OpACK, Block: expected}).Encode()
				if _, werr := conn.WriteTo(ack, peer); werr != nil {
					return neterr.New(neterr.Io, "tftp.receiveToWriter", werr)
				}
				lastSent = ack
				final := len(p.Data) < MaxDataSize
				expected++
				if final {
					return nil
				}
			case expected - 1:
				ack := (&Packet{Op: OpACK, Block: p.Block}).Encode()
				_, _ = conn.WriteTo(ack, peer)
			default:
			}

		case OpERROR:
			return neterr.New(neterr.Peer, "tftp.receiveToWriter", fmt.Errorf("tftp error %d: %s", p.Code, p.Message))

		default:
			return neterr.New(neterr.Protocol, "tftp.receiveToWriter", fmt.Errorf("unexpected opcode %d", p.Op))
		}
	}
}
