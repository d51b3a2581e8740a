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

// Package tftp implements a RFC 1350 TFTP client and a concurrent
// multi-transfer server: lockstep request/ACK/data/error exchange over
// UDP, with timeout retry, TID binding and block-number wraparound.
package tftp

import (
	"encoding/binary"

	"github.com/netclassic/netproto/neterr"
)

// OpCode identifies the kind of a TFTP packet on the wire.
type OpCode uint16

// Opcodes defined by RFC 1350.
const (
	OpRRQ   OpCode = 1
	OpWRQ   OpCode = 2
	OpDATA  OpCode = 3
	OpACK   OpCode = 4
	OpERROR OpCode = 5
)

// ErrorCode is the numeric code carried by an ERROR packet.
type ErrorCode uint16

// Error codes defined by RFC 1350 §5.
const (
	ErrUndefined       ErrorCode = 0
	ErrFileNotFound    ErrorCode = 1
	ErrAccessViolation ErrorCode = 2
	ErrDiskFull        ErrorCode = 3
	ErrIllegalOp       ErrorCode = 4
	ErrUnknownTID      ErrorCode = 5
	ErrFileExists      ErrorCode = 6
	ErrNoSuchUser      ErrorCode = 7
)

// Mode is the transfer mode named in an RRQ/WRQ.
type Mode string

// Modes recognized by this implementation. "mail" is accepted on the wire
// per RFC 1350 but is otherwise treated the same as octet.
const (
	ModeNetASCII Mode = "netascii"
	ModeOctet    Mode = "octet"
	ModeMail     Mode = "mail"
)

// MaxDataSize is the largest payload a DATA packet may carry; a shorter
// payload signals end-of-transfer.
const MaxDataSize = 512

// Packet is a decoded TFTP datagram. Exactly one of the typed fields is
// meaningful, selected by Op.
type Packet struct {
	Op OpCode

	// RRQ / WRQ
	Filename string
	Mode     Mode

	// DATA / ACK
	Block uint16
	Data  []byte

	// ERROR
	Code    ErrorCode
	Message string
}

// Encode serializes p to its wire representation.
func (p *Packet) Encode() []byte {
	switch p.Op {
	case OpRRQ, OpWRQ:
		buf := make([]byte, 2, 2+len(p.Filename)+1+len(p.Mode)+1)
		binary.BigEndian.PutUint16(buf, uint16(p.Op))
		buf = append(buf, p.Filename...)
		buf = append(buf, 0)
		buf = append(buf, string(p.Mode)...)
		buf = append(buf, 0)
		return buf

	case OpDATA:
		buf := make([]byte, 4+len(p.Data))
		binary.BigEndian.PutUint16(buf, uint16(OpDATA))
		binary.BigEndian.PutUint16(buf[2:], p.Block)
		copy(buf[4:], p.Data)
		return buf

	case OpACK:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint16(buf, uint16(OpACK))
		binary.BigEndian.PutUint16(buf[2:], p.Block)
		return buf

	case OpERROR:
		buf := make([]byte, 4, 4+len(p.Message)+1)
		binary.BigEndian.PutUint16(buf, uint16(OpERROR))
		binary.BigEndian.PutUint16(buf[2:], uint16(p.Code))
		buf = append(buf, p.Message...)
		buf = append(buf, 0)
		return buf

	default:
		return nil
	}
}

// DecodePacket parses a single datagram payload into a Packet.
func DecodePacket(buf []byte) (*Packet, error) {
	if len(buf) < 2 {
		return nil, neterr.New(neterr.Protocol, "tftp.Decode", nil)
	}
	op := OpCode(binary.BigEndian.Uint16(buf[:2]))
	rest := buf[2:]

	switch op {
	case OpRRQ, OpWRQ:
		filename, rest, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		mode, _, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		return &Packet{Op: op, Filename: filename, Mode: Mode(mode)}, nil

	case OpDATA:
		if len(rest) < 2 {
			return nil, neterr.New(neterr.Protocol, "tftp.Decode", nil)
		}
		return &Packet{
			Op:    OpDATA,
			Block: binary.BigEndian.Uint16(rest[:2]),
			Data:  append([]byte(nil), rest[2:]...),
		}, nil

	case OpACK:
		if len(rest) < 2 {
			return nil, neterr.New(neterr.Protocol, "tftp.Decode", nil)
		}
		return &Packet{Op: OpACK, Block: binary.BigEndian.Uint16(rest[:2])}, nil

	case OpERROR:
		if len(rest) < 2 {
			return nil, neterr.New(neterr.Protocol, "tftp.Decode", nil)
		}
		msg, _, err := readCString(rest[2:])
		if err != nil {
			return nil, err
		}
		return &Packet{
			Op:      OpERROR,
			Code:    ErrorCode(binary.BigEndian.Uint16(rest[:2])),
			Message: msg,
		}, nil

	default:
		return nil, neterr.New(neterr.Protocol, "tftp.Decode", nil)
	}
}

func readCString(buf []byte) (string, []byte, error) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), buf[i+1:], nil
		}
	}
	return "", nil, neterr.New(neterr.Protocol, "tftp.readCString", nil)
}
