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

// byteState is the inline IAC byte state machine's current state.
type byteState int

const (
	stData byteState = iota
	stIAC
	stWill
	stWont
	stDo
	stDont
	stSB
	stIACSB
	stCR
)

// MaxSubnegotiationSize bounds the accumulated IAC SB ... IAC SE buffer;
// bytes beyond it are silently dropped, per the byte state machine's
// overflow rule.
const MaxSubnegotiationSize = 1024

// optPair tracks an option's Q-method state independently on each side.
type optPair struct {
	local  qSide
	remote qSide
}

// engine drives the IAC byte state machine and RFC 1143 negotiation for
// a single connection. It has no transport of its own: Feed is given
// inbound bytes one at a time and calls emit for each decoded data byte
// and send for each outbound negotiation reply.
type engine struct {
	handlers map[byte]OptionHandler
	options  map[byte]*optPair

	state    byteState
	sbBuf    []byte
	sbOption byte

	send func([]byte)
	emit func(byte)
}

// newEngine constructs an engine over the given option handlers. send is
// called (possibly from within Feed) with bytes that must be written to
// the peer; emit is called with each decoded application data byte.
func newEngine(handlers []OptionHandler, send func([]byte), emit func(byte)) *engine {
	e := &engine{
		handlers: map[byte]OptionHandler{},
		options:  map[byte]*optPair{},
		send:     send,
		emit:     emit,
	}
	for _, h := range handlers {
		e.handlers[h.Option()] = h
		e.options[h.Option()] = &optPair{}
	}
	return e
}

func (e *engine) pair(opt byte) *optPair {
	p, ok := e.options[opt]
	if !ok {
		p = &optPair{}
		e.options[opt] = p
	}
	return p
}

// negotiateStartup sends the initial WILL/DO requests for every handler
// that wants its option enabled by default.
func (e *engine) negotiateStartup() {
	for opt, h := range e.handlers {
		p := e.pair(opt)
		if h.WantLocal() && p.local.requestEnable() {
			e.send([]byte{IAC, WILL, opt})
		}
		if h.WantRemote() && p.remote.requestEnable() {
			e.send([]byte{IAC, DO, opt})
		}
	}
}

// Feed processes one inbound byte, advancing the state machine, driving
// negotiation, and emitting decoded application bytes via e.emit.
func (e *engine) Feed(b byte) {
	switch e.state {
	case stData:
		e.feedData(b)

	case stCR:
		switch b {
		case 0:
			e.emit('\r')
			e.state = stData
		default:
			e.emit('\r')
			e.feedData(b)
		}

	case stIAC:
		switch b {
		case WILL:
			e.state = stWill
		case WONT:
			e.state = stWont
		case DO:
			e.state = stDo
		case DONT:
			e.state = stDont
		case SB:
			e.sbBuf = e.sbBuf[:0]
			e.state = stSB
		case SE:
			e.deliverSubnegotiation()
			e.state = stData
		case IAC:
			e.emit(0xFF)
			e.state = stData
		default:
			// other IAC commands (NOP, AYT, IP, ...): acknowledged by
			// ignoring; no per-command callback is wired in this build.
			e.state = stData
		}

	case stWill:
		e.handleEnableRequest(b, &e.pair(b).remote, e.handlerAcceptWill(b), DO, DONT)
		e.state = stData

	case stWont:
		e.handleDisableRequest(b, &e.pair(b).remote, DONT)
		e.state = stData

	case stDo:
		e.handleEnableRequest(b, &e.pair(b).local, e.handlerAcceptDo(b), WILL, WONT)
		e.state = stData

	case stDont:
		e.handleDisableRequest(b, &e.pair(b).local, WONT)
		e.state = stData

	case stSB:
		switch b {
		case IAC:
			e.state = stIACSB
		default:
			if len(e.sbBuf) < MaxSubnegotiationSize {
				e.sbBuf = append(e.sbBuf, b)
			}
		}

	case stIACSB:
		switch b {
		case SE:
			e.deliverSubnegotiation()
			e.state = stData
		case IAC:
			if len(e.sbBuf) < MaxSubnegotiationSize {
				e.sbBuf = append(e.sbBuf, 0xFF)
			}
			e.state = stSB
		default:
			// malformed: a non-IAC, non-SE byte immediately after an
			// escape marker inside a subnegotiation. Drop it.
			e.state = stSB
		}
	}
}

func (e *engine) feedData(b byte) {
	switch b {
	case IAC:
		e.state = stIAC
	case '\r':
		if e.remoteIsBinary() {
			e.emit(b)
		} else {
			e.state = stCR
		}
	default:
		e.emit(b)
	}
}

// remoteIsBinary reports whether TRANSMIT-BINARY (RFC 856) is currently
// negotiated on the remote side, i.e. the peer is sending to us in
// binary mode and CR is plain data rather than the start of a
// CR-NUL/CR-LF NVT ASCII sequence. An option never negotiated is treated
// as not binary.
func (e *engine) remoteIsBinary() bool {
	p, ok := e.options[OptBinary]
	return ok && p.remote.state == qYes
}

func (e *engine) handlerAcceptWill(opt byte) bool {
	h, ok := e.handlers[opt]
	return ok && h.AcceptWill()
}

func (e *engine) handlerAcceptDo(opt byte) bool {
	h, ok := e.handlers[opt]
	return ok && h.AcceptDo()
}

// handleEnableRequest processes a WILL (side=remote) or DO (side=local)
// command for option opt, replying with acceptByte/refuseByte as the
// Q-method dictates, and kicking off the handler's local subnegotiation
// the first time the side newly reaches YES, whether by accepting the
// peer's offer or by the peer confirming our own request.
func (e *engine) handleEnableRequest(opt byte, side *qSide, acceptable bool, acceptByte, refuseByte byte) {
	wasYes := side.state == qYes
	sendAccept, sendRefuse := side.receiveEnable(acceptable)
	if sendAccept {
		e.send([]byte{IAC, acceptByte, opt})
	}
	if sendRefuse {
		e.send([]byte{IAC, refuseByte, opt})
	}
	if !wasYes && side.state == qYes {
		if h, ok := e.handlers[opt]; ok {
			if payload := h.StartSubnegotiationLocal(); payload != nil {
				e.sendSubnegotiation(opt, payload)
			}
		}
	}
}

func (e *engine) handleDisableRequest(opt byte, side *qSide, replyByte byte) {
	if side.receiveDisable() {
		e.send([]byte{IAC, replyByte, opt})
	}
}

func (e *engine) deliverSubnegotiation() {
	if len(e.sbBuf) == 0 {
		return
	}
	opt := e.sbBuf[0]
	data := e.sbBuf[1:]
	if h, ok := e.handlers[opt]; ok {
		h.AnswerSubnegotiation(data)
	}
}

// sendSubnegotiation writes IAC SB opt <payload, with 0xFF doubled> IAC SE.
func (e *engine) sendSubnegotiation(opt byte, payload []byte) {
	buf := make([]byte, 0, len(payload)+6)
	buf = append(buf, IAC, SB, opt)
	for _, b := range payload {
		buf = append(buf, b)
		if b == IAC {
			buf = append(buf, IAC)
		}
	}
	buf = append(buf, IAC, SE)
	e.send(buf)
}

// EncodeData escapes application data bytes for the wire: every literal
// 0xFF is doubled so the peer's state machine does not mistake it for
// IAC.
func EncodeData(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = append(out, b)
		if b == IAC {
			out = append(out, IAC)
		}
	}
	return out
}
