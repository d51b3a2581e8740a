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

// Package telnet implements RFC 854 byte-stream option negotiation: an
// inline IAC state machine, RFC 1143 Q-method per-option negotiation,
// pluggable option handlers, and a reader/caller coupling over a bounded
// ring buffer.
package telnet

// Telnet command bytes (RFC 854).
const (
	IAC  byte = 255
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	SB   byte = 250
	SE   byte = 240
)

// Well-known option codes used by the built-in handlers.
const (
	OptBinary   byte = 0
	OptEcho     byte = 1
	OptSGA      byte = 3
	OptTermType byte = 24
	OptNAWS     byte = 31
)

// qState is one side's (local or remote) RFC 1143 negotiation state.
type qState int

// Q-method states.
const (
	qNo qState = iota
	qYes
	qWantYes
	qWantNo
)

// qSide holds one option's state on one side (local or remote), plus the
// RFC 1143 "queue" bit recording a desired opposite transition requested
// while a reply was already in flight.
type qSide struct {
	state qState
	queue bool
}

// receiveEnable processes a peer request to enable the option (a WILL on
// the remote side, or a DO on the local side). acceptable reports
// whether this endpoint is willing to have the option on; it is ignored
// unless the side is currently NO. Returns which reply (if any) to send.
func (s *qSide) receiveEnable(acceptable bool) (sendAccept, sendRefuse bool) {
	switch s.state {
	case qNo:
		if acceptable {
			s.state = qYes
			return true, false
		}
		return false, true
	case qWantYes:
		s.state = qYes
		return false, false
	case qWantNo:
		if !s.queue {
			s.state = qNo
			return false, false
		}
		s.state = qWantYes
		s.queue = false
		return false, false
	case qYes:
		// Steady-state confirmation: never answer it (avoids loops).
		return false, false
	}
	return false, false
}

// receiveDisable processes a peer request to disable the option (a WONT
// on the remote side, or a DONT on the local side). Disabling is never
// refused; it returns whether to send the matching reply.
func (s *qSide) receiveDisable() (sendReply bool) {
	switch s.state {
	case qYes:
		s.state = qNo
		return true
	case qWantNo:
		if s.queue {
			s.state = qWantYes
			s.queue = false
			return false
		}
		s.state = qNo
		return false
	case qWantYes:
		s.state = qNo
		s.queue = false
		return false
	case qNo:
		return false
	}
	return false
}

// requestEnable starts this endpoint asking the peer to turn the option
// on (sending DO for a remote-side option, WILL for a local-side one).
// Returns whether a command should actually be sent now.
func (s *qSide) requestEnable() (send bool) {
	switch s.state {
	case qNo:
		s.state = qWantYes
		return true
	case qWantNo:
		s.queue = true
		return false
	case qYes, qWantYes:
		return false
	}
	return false
}

// requestDisable is the mirror of requestEnable.
func (s *qSide) requestDisable() (send bool) {
	switch s.state {
	case qYes:
		s.state = qWantNo
		return true
	case qWantYes:
		s.queue = true
		return false
	case qNo, qWantNo:
		return false
	}
	return false
}

// enabled reports whether the option is currently active on this side.
func (s *qSide) enabled() bool { return s.state == qYes }
