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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	e, err := Parse("size=1234;modify=20230615120000;type=file;unix.owner=root;unix.group=wheel;unix.mode=0644; report.txt")
	require.NoError(t, err)
	require.Equal(t, "report.txt", e.Name)
	require.Equal(t, int64(1234), e.Size)
	require.True(t, e.HasSize)
	require.Equal(t, File, e.Type)
	require.Equal(t, "root", e.Owner)
	require.Equal(t, "wheel", e.Group)
	require.True(t, e.Can(User, Read))
	require.True(t, e.Can(User, Write))
	require.False(t, e.Can(User, Execute))
	require.True(t, e.Can(Group, Read))
	require.True(t, e.Can(World, Read))
	require.Equal(t, time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC), e.Modify)
}

func TestParseControlReplyNoFacts(t *testing.T) {
	e, err := Parse(" just/a/path")
	require.NoError(t, err)
	require.Equal(t, "just/a/path", e.Name)
	require.False(t, e.HasSize)
}

func TestParseCdirPdirCollapseToDirectory(t *testing.T) {
	for _, ty := range []string{"cdir", "pdir", "dir"} {
		e, err := Parse("type=" + ty + "; .")
		require.NoError(t, err)
		require.Equal(t, Directory, e.Type)
	}
}

func TestParseUnknownType(t *testing.T) {
	e, err := Parse("type=OS.unix; link")
	require.NoError(t, err)
	require.Equal(t, Unknown, e.Type)
}

func TestParseMissingTrailingSemicolonRejects(t *testing.T) {
	_, err := Parse("size=10 path")
	require.Error(t, err)
}

func TestParseMissingEqualsRejects(t *testing.T) {
	_, err := Parse("sizewithoutequals; path")
	require.Error(t, err)
}

func TestParseEmptyPathRejects(t *testing.T) {
	_, err := Parse("size=10; ")
	require.Error(t, err)
}

func TestParseBadSizeRejects(t *testing.T) {
	_, err := Parse("size=notanumber; path")
	require.Error(t, err)
}

func TestParseBadModifyRejects(t *testing.T) {
	_, err := Parse("modify=not-a-timestamp; path")
	require.Error(t, err)
}

func TestParseModifyRequiresFullConsumption(t *testing.T) {
	// trailing garbage after the strict layout must not be silently dropped
	_, err := Parse("modify=20230615120000XYZ; path")
	require.Error(t, err)
}

func TestParsePermWithoutUnixMode(t *testing.T) {
	e, err := Parse("perm=rwe; path")
	require.NoError(t, err)
	require.True(t, e.Can(User, Read))
	require.True(t, e.Can(User, Write))
	require.True(t, e.Can(User, Execute))
}

func TestUnixModeTakesPrecedenceOverPerm(t *testing.T) {
	// unix.mode present: perm is ignored even though order in the fact
	// list has perm first.
	e, err := Parse("perm=r;unix.mode=0200; path")
	require.NoError(t, err)
	require.False(t, e.Can(User, Read))
	require.True(t, e.Can(User, Write))
}

func TestUnixModeTakesPrecedenceOverPermRegardlessOfOrder(t *testing.T) {
	// Same as TestUnixModeTakesPrecedenceOverPerm but with unix.mode
	// appearing first in the fact list, to confirm the precedence check
	// is not itself order-dependent.
	e, err := Parse("unix.mode=0200;perm=r; path")
	require.NoError(t, err)
	require.False(t, e.Can(User, Read))
	require.True(t, e.Can(User, Write))
}

func TestFormatParseRoundTrip(t *testing.T) {
	orig := &Entry{
		Name:     "file.bin",
		Size:     42,
		HasSize:  true,
		Modify:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		HasMtime: true,
		Type:     File,
		Owner:    "u",
		Group:    "g",
	}
	orig.Grant(User, Read)
	orig.Grant(User, Write)
	orig.Grant(Group, Read)
	orig.Grant(World, Read)

	line := Format(orig)
	parsed, err := Parse(line)
	require.NoError(t, err)

	require.Equal(t, orig.Name, parsed.Name)
	require.Equal(t, orig.Size, parsed.Size)
	require.Equal(t, orig.Modify, parsed.Modify)
	require.Equal(t, orig.Type, parsed.Type)
	require.Equal(t, orig.Owner, parsed.Owner)
	require.Equal(t, orig.Group, parsed.Group)
	for _, a := range []Access{User, Group, World} {
		for _, p := range []Permission{Read, Write, Execute} {
			require.Equal(t, orig.Can(a, p), parsed.Can(a, p))
		}
	}
}
