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

package mlsx

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/netclassic/netproto/neterr"
)

// mtimeLayout is the RFC 3659 strict GMT timestamp format: YYYYMMDDhhmmss
// with an optional fractional-second suffix.
const mtimeLayout = "20060102150405"

// Parse parses a single MLSx listing line into an Entry. A leading space
// with no facts means "control-reply MLST entry, no facts, rest is the
// pathname". Otherwise the line is "facts SP path" where facts is a
// sequence of "name=value;" tokens (the trailing ";" is required).
func Parse(line string) (*Entry, error) {
	if strings.HasPrefix(line, " ") {
		path := strings.TrimPrefix(line, " ")
		if path == "" {
			return nil, neterr.New(neterr.Protocol, "mlsx.Parse", errors.New("empty path"))
		}
		return &Entry{Name: path}, nil
	}

	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return nil, neterr.New(neterr.Protocol, "mlsx.Parse", errors.New("missing fact/path separator"))
	}
	factsPart, path := line[:sp], line[sp+1:]
	if path == "" {
		return nil, neterr.New(neterr.Protocol, "mlsx.Parse", errors.New("empty path"))
	}
	if !strings.HasSuffix(factsPart, ";") {
		return nil, neterr.New(neterr.Protocol, "mlsx.Parse", errors.New("fact list missing trailing semicolon"))
	}

	entry := &Entry{Name: path}
	tokens := strings.Split(strings.TrimSuffix(factsPart, ";"), ";")
	haveUnixMode := factsHaveUnixMode(tokens)

	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			return nil, neterr.New(neterr.Protocol, "mlsx.Parse", errors.Errorf("malformed fact %q: missing '='", tok))
		}
		name := strings.ToLower(tok[:eq])
		value := tok[eq+1:]

		switch name {
		case "size":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return nil, neterr.New(neterr.Protocol, "mlsx.Parse", errors.Errorf("bad size %q", value))
			}
			entry.Size = n
			entry.HasSize = true

		case "modify":
			t, err := parseStrictGMT(value)
			if err != nil {
				return nil, neterr.New(neterr.Protocol, "mlsx.Parse", err)
			}
			entry.Modify = t
			entry.HasMtime = true

		case "type":
			entry.Type = parseType(value)

		case "unix.owner":
			entry.Owner = value

		case "unix.group":
			entry.Group = value

		case "unix.mode":
			mode, err := strconv.ParseUint(lastNDigits(value, 3), 8, 32)
			if err != nil {
				return nil, neterr.New(neterr.Protocol, "mlsx.Parse", errors.Errorf("bad unix.mode %q", value))
			}
			applyUnixMode(entry, uint16(mode))

		case "perm":
			if !haveUnixMode {
				applyPerm(entry, value)
			}

		default:
			// unrecognized facts are ignored per RFC 3659 §7.
		}
	}

	return entry, nil
}

func parseType(v string) EntryType {
	switch strings.ToLower(v) {
	case "file":
		return File
	case "dir", "cdir", "pdir":
		return Directory
	default:
		return Unknown
	}
}

// parseStrictGMT parses "YYYYMMDDhhmmss[.fff]" and requires the whole
// value to be consumed. Each call builds its own parser state: the
// source's shared date formatter is not goroutine-safe, so we never keep
// one around.
func parseStrictGMT(v string) (time.Time, error) {
	layout := mtimeLayout
	if idx := strings.IndexByte(v, '.'); idx >= 0 {
		layout = mtimeLayout + "." + strings.Repeat("0", len(v)-idx-1)
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "bad modify timestamp %q", v)
	}
	return t.UTC(), nil
}

// factsHaveUnixMode reports whether a unix.mode fact occurs anywhere in
// tokens, scanned once up front so that a perm fact preceding unix.mode
// in the same line still defers to it rather than being applied and
// left unretracted.
func factsHaveUnixMode(tokens []string) bool {
	for _, tok := range tokens {
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			continue
		}
		if strings.ToLower(tok[:eq]) == "unix.mode" {
			return true
		}
	}
	return false
}

func lastNDigits(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// applyUnixMode maps the last three octal digits of a unix.mode fact to
// the USER/GROUP/WORLD x READ/WRITE/EXECUTE matrix.
func applyUnixMode(e *Entry, mode uint16) {
	user := unixModeMatrix(uint8((mode >> 6) & 0o7))
	group := unixModeMatrix(uint8((mode >> 3) & 0o7))
	world := unixModeMatrix(uint8(mode & 0o7))
	for p := Read; p <= Execute; p++ {
		if user[p] {
			e.Grant(User, p)
		}
		if group[p] {
			e.Grant(Group, p)
		}
		if world[p] {
			e.Grant(World, p)
		}
	}
}

// applyPerm heuristically maps "perm" characters to USER permissions,
// used only when unix.mode is absent. 'f' (renamable) is intentionally
// ignored — see DESIGN.md open question.
func applyPerm(e *Entry, v string) {
	for _, c := range v {
		switch c {
		case 'r':
			e.Grant(User, Read)
		case 'w', 'a', 'c', 'd', 'm', 'p':
			e.Grant(User, Write)
		case 'e', 'l':
			e.Grant(User, Execute)
		}
	}
}
