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

// Package ntp implements the NTPv3 TimeInfo computation: a 64-bit
// fixed-point timestamp type and the round-trip delay / clock offset
// calculation from the four message timestamps.
package ntp

// Epoch1900 is the number of seconds between the NTP epoch (1900-01-01)
// and the Unix epoch (1970-01-01).
const Epoch1900 = 2208988800

// Timestamp is a 64-bit NTP timestamp: 32 bits of seconds since the NTP
// epoch, 32 bits of binary fraction of a second (units of 2^-32 s).
type Timestamp uint64

// NewTimestamp packs seconds and a fraction into a Timestamp.
func NewTimestamp(seconds, fraction uint32) Timestamp {
	return Timestamp(uint64(seconds)<<32 | uint64(fraction))
}

// Seconds returns the seconds-since-1900 component.
func (t Timestamp) Seconds() uint32 { return uint32(t >> 32) }

// Fraction returns the fractional-second component.
func (t Timestamp) Fraction() uint32 { return uint32(t) }

// Milliseconds converts the timestamp to milliseconds since the POSIX
// epoch, rounding the fraction to the nearest millisecond. A seconds
// field with its high bit clear is read as counting from the 2036 wrap
// of the 32-bit seconds field, so timestamps past 2036 still convert
// (and round-trip through FromMillis/Milliseconds).
func (t Timestamp) Milliseconds() int64 {
	secs := int64(t.Seconds())
	if secs&0x80000000 == 0 {
		secs += 1 << 32
	}
	secs -= Epoch1900
	fracMillis := (int64(t.Fraction())*1000 + (1 << 31)) >> 32
	return secs*1000 + fracMillis
}

// FromMillis builds a Timestamp from milliseconds since the POSIX epoch.
func FromMillis(ms int64) Timestamp {
	secs := ms/1000 + Epoch1900
	remMillis := ms % 1000
	if remMillis < 0 {
		remMillis += 1000
		secs--
	}
	frac := (uint64(remMillis) << 32) / 1000
	return NewTimestamp(uint32(secs), uint32(frac))
}

// IsZero reports whether the timestamp is the all-zero sentinel NTP uses
// to mean "not set".
func (t Timestamp) IsZero() bool { return t == 0 }
