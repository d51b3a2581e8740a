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
	"testing"

	"github.com/stretchr/testify/require"

	protocol "github.com/netclassic/netproto/ntp/protocol"
)

func packetFromMillis(t1, t2, t3 int64) *protocol.Packet {
	p := &protocol.Packet{}
	if t1 != 0 {
		ts := FromMillis(t1)
		p.OrigTimeSec, p.OrigTimeFrac = ts.Seconds(), ts.Fraction()
	}
	if t2 != 0 {
		ts := FromMillis(t2)
		p.RxTimeSec, p.RxTimeFrac = ts.Seconds(), ts.Fraction()
	}
	if t3 != 0 {
		ts := FromMillis(t3)
		p.TxTimeSec, p.TxTimeFrac = ts.Seconds(), ts.Fraction()
	}
	return p
}

func TestTimestampRoundTripsThroughMillis(t *testing.T) {
	for _, ms := range []int64{0, 1, 1000, 1717000000123, 4102444800999} {
		ts := FromMillis(ms)
		require.InDelta(t, ms, ts.Milliseconds(), 1, "round trip for %d", ms)
	}
}

func TestNewTimeInfoRejectsNilMessage(t *testing.T) {
	_, err := NewTimeInfo(nil, nil, 0)
	require.Error(t, err)
}

func TestComputeDetailsBothOriginAndTransmitZero(t *testing.T) {
	p := packetFromMillis(0, 0, 0)
	ti, err := NewTimeInfo(p, nil, 1000)
	require.NoError(t, err)
	ti.ComputeDetails()

	_, ok := ti.Delay()
	require.False(t, ok)
	_, ok = ti.Offset()
	require.False(t, ok)
	require.NotEmpty(t, ti.Comments())
}

func TestComputeDetailsBroadcastLikeEstimate(t *testing.T) {
	// spec scenario 4: T1=0, T3=2000, T4=2100 -> offset=-100, delay absent.
	p := packetFromMillis(0, 0, 2000)
	ti, err := NewTimeInfo(p, nil, 2100)
	require.NoError(t, err)
	ti.ComputeDetails()

	_, ok := ti.Delay()
	require.False(t, ok)
	offset, ok := ti.Offset()
	require.True(t, ok)
	require.Equal(t, int64(-100), offset)
	require.Len(t, ti.Comments(), 1)
}

func TestComputeDetailsNormalCase(t *testing.T) {
	// spec scenario 3: T1=1000,T2=1500,T3=1600,T4=1100 -> delay=0, offset=500.
	p := packetFromMillis(1000, 1500, 1600)
	ti, err := NewTimeInfo(p, nil, 1100)
	require.NoError(t, err)
	ti.ComputeDetails()

	delay, ok := ti.Delay()
	require.True(t, ok)
	require.Equal(t, int64(0), delay)

	offset, ok := ti.Offset()
	require.True(t, ok)
	require.Equal(t, int64(500), offset)
}

func TestComputeDetailsAllTimestampsEqualYieldsZeroOffsetAndDelay(t *testing.T) {
	p := packetFromMillis(5000, 5000, 5000)
	ti, err := NewTimeInfo(p, nil, 5000)
	require.NoError(t, err)
	ti.ComputeDetails()

	delay, ok := ti.Delay()
	require.True(t, ok)
	require.Equal(t, int64(0), delay)

	offset, ok := ti.Offset()
	require.True(t, ok)
	require.Equal(t, int64(0), offset)
}

func TestComputeDetailsExactlyOneOfReceiveOrTransmitZero(t *testing.T) {
	p := packetFromMillis(1000, 1500, 0)
	ti, err := NewTimeInfo(p, nil, 2000)
	require.NoError(t, err)
	ti.ComputeDetails()

	delay, ok := ti.Delay()
	require.True(t, ok)
	require.Equal(t, int64(1000), delay)

	offset, ok := ti.Offset()
	require.True(t, ok)
	require.Equal(t, int64(500), offset)
}

func TestComputeDetailsDestTimeBeforeOriginTimeLeavesDelayAbsent(t *testing.T) {
	p := packetFromMillis(5000, 5200, 0)
	ti, err := NewTimeInfo(p, nil, 1000)
	require.NoError(t, err)
	ti.ComputeDetails()

	_, ok := ti.Delay()
	require.False(t, ok)
	_, ok = ti.Offset()
	require.True(t, ok)
}

func TestComputeDetailsClampsNegativeOneMillisecondDelayToZero(t *testing.T) {
	// chosen so d = (t4-t1) - (t3-t2) == -1 exactly.
	p := packetFromMillis(1000, 1500, 1600)
	ti, err := NewTimeInfo(p, nil, 1099)
	require.NoError(t, err)
	ti.ComputeDetails()

	delay, ok := ti.Delay()
	require.True(t, ok)
	require.Equal(t, int64(0), delay)
	require.Contains(t, ti.Comments()[len(ti.Comments())-1], "clamped")
}

func TestComputeDetailsIsIdempotent(t *testing.T) {
	p := packetFromMillis(1000, 1500, 1600)
	ti, err := NewTimeInfo(p, nil, 1100)
	require.NoError(t, err)
	ti.ComputeDetails()
	delay1, _ := ti.Delay()
	offset1, _ := ti.Offset()
	commentsLen := len(ti.Comments())

	ti.ComputeDetails()
	delay2, _ := ti.Delay()
	offset2, _ := ti.Offset()

	require.Equal(t, delay1, delay2)
	require.Equal(t, offset1, offset2)
	require.Len(t, ti.Comments(), commentsLen)
}
