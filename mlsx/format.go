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
	"fmt"
	"strings"
)

// Format renders an Entry back into an MLSx fact-list line, using only
// the facts Parse recognizes. It exists so the round-trip property
// (parse(format(e)) == e) is directly testable. The round trip does not
// hold in two cases: Modify is written to whole seconds, and a Symlink
// type is written as "type=symlink", which Parse reads back as Unknown.
func Format(e *Entry) string {
	var b strings.Builder
	if e.HasSize {
		fmt.Fprintf(&b, "size=%d;", e.Size)
	}
	if e.HasMtime {
		fmt.Fprintf(&b, "modify=%s;", e.Modify.UTC().Format(mtimeLayout))
	}
	fmt.Fprintf(&b, "type=%s;", e.Type)
	if e.Owner != "" {
		fmt.Fprintf(&b, "unix.owner=%s;", e.Owner)
	}
	if e.Group != "" {
		fmt.Fprintf(&b, "unix.group=%s;", e.Group)
	}
	fmt.Fprintf(&b, "unix.mode=%s;", unixModeOctal(e))
	b.WriteByte(' ')
	b.WriteString(e.Name)
	return b.String()
}

func unixModeOctal(e *Entry) string {
	digit := func(a Access) int {
		d := 0
		if e.Can(a, Read) {
			d |= 0o4
		}
		if e.Can(a, Write) {
			d |= 0o2
		}
		if e.Can(a, Execute) {
			d |= 0o1
		}
		return d
	}
	return fmt.Sprintf("%d%d%d", digit(User), digit(Group), digit(World))
}
