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

package ntp

import (
	"net"

	"github.com/netclassic/netproto/neterr"
	protocol "github.com/netclassic/netproto/ntp/protocol"
)

// TimeInfo is an immutable-after-computeDetails record of a single NTP
// exchange: the received message's T1/T2/T3, the local destination time
// T4, and the derived delay/offset once computeDetails has run.
type TimeInfo struct {
	message  *protocol.Packet
	address  net.Addr
	destTime int64 // T4, millis since Unix epoch, same base as message times

	delay  *int64
	offset *int64

	comments []string

	done bool
}

// NewTimeInfo constructs a TimeInfo from a received NTP message and the
// local destination time T4 (millis since Unix epoch). message must not
// be nil.
func NewTimeInfo(message *protocol.Packet, address net.Addr, destTime int64) (*TimeInfo, error) {
	if message == nil {
		return nil, neterr.New(neterr.InvalidArgument, "ntp.NewTimeInfo", nil)
	}
	return &TimeInfo{
		message:  message,
		address:  address,
		destTime: destTime,
		comments: []string{},
	}, nil
}

// Message returns the received NTP message.
func (ti *TimeInfo) Message() *protocol.Packet { return ti.message }

// Address returns the peer address the message was received from, if any.
func (ti *TimeInfo) Address() net.Addr { return ti.address }

// DestinationTime returns T4, the local receipt time in millis.
func (ti *TimeInfo) DestinationTime() int64 { return ti.destTime }

// Delay returns the computed round-trip delay in millis, or (0, false) if
// it could not be computed.
func (ti *TimeInfo) Delay() (int64, bool) {
	if ti.delay == nil {
		return 0, false
	}
	return *ti.delay, true
}

// Offset returns the computed clock offset in millis, or (0, false) if it
// could not be computed.
func (ti *TimeInfo) Offset() (int64, bool) {
	if ti.offset == nil {
		return 0, false
	}
	return *ti.offset, true
}

// Comments returns the ordered, append-only list of human-readable
// validation notes recorded by computeDetails. Treat as a log, not an
// error channel.
func (ti *TimeInfo) Comments() []string {
	out := make([]string, len(ti.comments))
	copy(out, ti.comments)
	return out
}

func (ti *TimeInfo) addComment(c string) { ti.comments = append(ti.comments, c) }

func originTimeMillis(p *protocol.Packet) int64 {
	if p.OrigTimeSec == 0 && p.OrigTimeFrac == 0 {
		return 0
	}
	return NewTimestamp(p.OrigTimeSec, p.OrigTimeFrac).Milliseconds()
}

func receiveTimeMillis(p *protocol.Packet) int64 {
	if p.RxTimeSec == 0 && p.RxTimeFrac == 0 {
		return 0
	}
	return NewTimestamp(p.RxTimeSec, p.RxTimeFrac).Milliseconds()
}

func transmitTimeMillis(p *protocol.Packet) int64 {
	if p.TxTimeSec == 0 && p.TxTimeFrac == 0 {
		return 0
	}
	return NewTimestamp(p.TxTimeSec, p.TxTimeFrac).Milliseconds()
}

// ComputeDetails fills in Delay and Offset from the four message
// timestamps (T1=origin, T2=receive, T3=transmit) and the destination
// time T4, per RFC-958-style offset/delay math. It is idempotent: a
// second call is a no-op.
func (ti *TimeInfo) ComputeDetails() {
	if ti.done {
		return
	}
	ti.done = true

	t1 := originTimeMillis(ti.message)
	t2 := receiveTimeMillis(ti.message)
	t3 := transmitTimeMillis(ti.message)
	t4 := ti.destTime

	switch {
	case t1 == 0 && t3 == 0:
		ti.addComment("t1 (origTime) and t3 (xmitTime) are zero: delay/offset not computable")
		return

	case t1 == 0 && t3 != 0:
		offset := t3 - t4
		ti.offset = &offset
		ti.addComment("broadcast-like estimate: origTime is zero, offset derived from xmitTime only")
		return

	case t1 != 0 && (t2 == 0) != (t3 == 0):
		// exactly one of t2, t3 is zero
		if t1 <= t4 {
			delay := t4 - t1
			ti.delay = &delay
		} else {
			ti.addComment("t4 (destTime) precedes t1 (origTime): delay not computable")
		}
		var offset int64
		if t2 != 0 {
			offset = t2 - t1
		} else {
			offset = t3 - t4
		}
		ti.offset = &offset
		ti.addComment("zero rcvNtpTime or xmitNtpTime")
		return

	default:
		// normal case: all four non-zero (t1==0&&t3==0 handled above, so
		// here if t1==0 then t3!=0 is handled above too; this branch is
		// reached when t1 != 0 and t2,t3 are either both zero or both set)
		if t2 == 0 && t3 == 0 {
			ti.addComment("t2 (rcvTime) and t3 (xmitTime) are zero: offset not computable")
			delay := t4 - t1
			ti.delay = &delay
			return
		}

		d := t4 - t1
		if t3 >= t2 {
			d -= t3 - t2
		}
		switch {
		case d < -1:
			ti.addComment("processing time > total network time")
		case d == -1:
			d = 0
			ti.addComment("clamped negative one-millisecond delay to zero (clock-tick quantization)")
		}
		ti.delay = &d

		offset := ((t2 - t1) + (t3 - t4)) / 2
		ti.offset = &offset
	}
}
