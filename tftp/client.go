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
	"time"

	"github.com/netclassic/netproto/neterr"
)

// ClientConfig tunes the client's retry and timeout behavior.
type ClientConfig struct {
	// MaxTimeouts is the number of consecutive read timeouts tolerated
	// before a transfer fails. Zero means DefaultMaxTimeouts.
	MaxTimeouts int
	// Timeout bounds each wait for a reply. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultMaxTimeouts and DefaultTimeout are used when a ClientConfig
// field is left at its zero value.
const (
	DefaultMaxTimeouts = 5
	DefaultTimeout     = time.Second
)

func (c ClientConfig) withDefaults() ClientConfig {
	if c.MaxTimeouts <= 0 {
		c.MaxTimeouts = DefaultMaxTimeouts
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// bindOrReject implements RFC 1350 TID binding: the first reply's source
// port becomes the peer's TID for the rest of the transfer, and is
// rejected if it equals the original well-known server port (the server
// MUST pick a fresh ephemeral port). Once bound, replies from any other
// endpoint get an "unknown TID" ERROR and are otherwise ignored.
func bindOrReject(conn *net.UDPConn, server, bound, from *net.UDPAddr) (*net.UDPAddr, bool, error) {
	if bound == nil {
		if from.Port == server.Port {
			return nil, false, neterr.New(neterr.Protocol, "tftp.bindOrReject", fmt.Errorf("server replied from its well-known port %d, must bind a fresh TID", server.Port))
		}
		return from, true, nil
	}
	if from.IP.Equal(bound.IP) && from.Port == bound.Port {
		return bound, true, nil
	}
	errPkt := (&Packet{Op: OpERROR, Code: ErrUnknownTID, Message: "unknown TID"}).Encode()
	_, _ = conn.WriteTo(errPkt, from)
	return bound, false, nil
}

// ReceiveFile performs a TFTP read: it sends an RRQ to server and writes
// the transferred payload to w as DATA packets arrive, in strict block
// order, ACKing each as it is accepted.
func ReceiveFile(conn *net.UDPConn, server *net.UDPAddr, name string, mode Mode, w io.Writer, cfg ClientConfig) error {
	cfg = cfg.withDefaults()

	peer := server
	var bound *net.UDPAddr
	expected := uint16(1)
	timeouts := 0

	lastSent := (&Packet{Op: OpRRQ, Filename: name, Mode: mode}).Encode()
	if _, err := conn.WriteTo(lastSent, peer); err != nil {
		return neterr.New(neterr.Io, "tftp.ReceiveFile", err)
	}

	var nstate netasciiState
	buf := make([]byte, MaxDataSize+4)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.Timeout)); err != nil {
			return neterr.New(neterr.Io, "tftp.ReceiveFile", err)
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				timeouts++
				if timeouts >= cfg.MaxTimeouts {
					return neterr.New(neterr.Timeout, "tftp.ReceiveFile", err)
				}
				if _, werr := conn.WriteTo(lastSent, peer); werr != nil {
					return neterr.New(neterr.Io, "tftp.ReceiveFile", werr)
				}
				continue
			}
			return neterr.New(neterr.Io, "tftp.ReceiveFile", err)
		}
		timeouts = 0

		newBound, accept, berr := bindOrReject(conn, server, bound, from)
		if berr != nil {
			return berr
		}
		bound = newBound
		peer = bound
		if !accept {
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
					return neterr.New(neterr.Io, "tftp.ReceiveFile", werr)
				}
				ack := (&Packet{Op: OpACK, Block: expected}).Encode()
				if _, werr := conn.WriteTo(ack, peer); werr != nil {
					return neterr.New(neterr.Io, "tftp.ReceiveFile", werr)
				}
				lastSent = ack
				final := len(p.Data) < MaxDataSize
				expected++
				if final {
					return nil
				}
			case expected - 1:
				// duplicate of the block we already acked; re-ack, don't advance.
				ack := (&Packet{Op: OpACK, Block: p.Block}).Encode()
				_, _ = conn.WriteTo(ack, peer)
			default:
				// out of order: discard silently, wait for the expected block.
			}

		case OpERROR:
			return neterr.New(neterr.Peer, "tftp.ReceiveFile", fmt.Errorf("tftp error %d: %s", p.Code, p.Message))

		default:
			return neterr.New(neterr.Protocol, "tftp.ReceiveFile", fmt.Errorf("unexpected opcode %d", p.Op))
		}
	}
}

// SendFile performs a TFTP write: it sends a WRQ to server, then streams
// r as DATA packets in 512-byte chunks, advancing only once each chunk's
// ACK is received. A final chunk shorter than 512 bytes signals EOF; if
// the source length is an exact multiple of 512, a trailing empty DATA
// packet is sent to terminate.
func SendFile(conn *net.UDPConn, server *net.UDPAddr, name string, mode Mode, r io.Reader, cfg ClientConfig) error {
	cfg = cfg.withDefaults()

	data, err := io.ReadAll(r)
	if err != nil {
		return neterr.New(neterr.Io, "tftp.SendFile", err)
	}
	if mode == ModeNetASCII {
		data = netasciiEncode(data)
	}

	peer := server
	var bound *net.UDPAddr
	block := uint16(0)
	sent := 0
	lastChunkShort := false
	timeouts := 0

	lastSent := (&Packet{Op: OpWRQ, Filename: name, Mode: mode}).Encode()
	if _, werr := conn.WriteTo(lastSent, peer); werr != nil {
		return neterr.New(neterr.Io, "tftp.SendFile", werr)
	}

	buf := make([]byte, 4)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.Timeout)); err != nil {
			return neterr.New(neterr.Io, "tftp.SendFile", err)
		}
		n, from, rerr := conn.ReadFromUDP(buf)
		if rerr != nil {
			if isTimeout(rerr) {
				timeouts++
				if timeouts >= cfg.MaxTimeouts {
					return neterr.New(neterr.Timeout, "tftp.SendFile", rerr)
				}
				if _, werr := conn.WriteTo(lastSent, peer); werr != nil {
					return neterr.New(neterr.Io, "tftp.SendFile", werr)
				}
				continue
			}
			return neterr.New(neterr.Io, "tftp.SendFile", rerr)
		}
		timeouts = 0

		newBound, accept, berr := bindOrReject(conn, server, bound, from)
		if berr != nil {
			return berr
		}
		bound = newBound
		peer = bound
		if !accept {
			continue
		}

		p, derr := DecodePacket(buf[:n])
		if derr != nil {
			return derr
		}

		switch p.Op {
		case OpACK:
			if p.Block != block {
				// stale or premature ack: ignore, rely on timeout/resend.
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
				return neterr.New(neterr.Io, "tftp.SendFile", werr)
			}
			lastSent = dataPkt

		case OpERROR:
			return neterr.New(neterr.Peer, "tftp.SendFile", fmt.Errorf("tftp error %d: %s", p.Code, p.Message))

		default:
			return neterr.New(neterr.Protocol, "tftp.SendFile", fmt.Errorf("unexpected opcode %d", p.Op))
		}
	}
}
