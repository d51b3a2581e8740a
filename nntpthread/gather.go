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

package nntpthread

// representative returns the article used to key a root-set container's
// subject: its own message, or (if it's a dummy) its first child's.
func (t *threader) representative(ix nodeIx) Article {
	if a := t.nodes[ix].article; a != nil {
		return a
	}
	fc := t.nodes[ix].firstChild
	if fc == noNode {
		return nil
	}
	return t.nodes[fc].article
}

func (t *threader) subjectOf(ix nodeIx) string {
	a := t.representative(ix)
	if a == nil {
		return ""
	}
	return a.SimplifiedSubject()
}

func (t *threader) subjectIsReply(ix nodeIx) bool {
	a := t.representative(ix)
	if a == nil {
		return false
	}
	return a.SubjectIsReply()
}

// gatherBySubject implements JWZ phase 5: build a subject -> container
// table over the root set, preferring dummies over real messages and
// non-reply subjects over replies as the table's representative; then
// merge every other root-set container sharing a subject into its
// table entry.
func (t *threader) gatherBySubject() {
	var rootSet []nodeIx
	for c := t.nodes[t.root].firstChild; c != noNode; c = t.nodes[c].nextSib {
		rootSet = append(rootSet, c)
	}

	table := map[string]nodeIx{}
	for _, c := range rootSet {
		subj := t.subjectOf(c)
		if subj == "" {
			continue
		}
		existing, ok := table[subj]
		if !ok {
			table[subj] = c
			continue
		}
		if t.preferOver(existing, c) {
			table[subj] = c
		}
	}

	var final []nodeIx
	pos := map[nodeIx]int{}  // index into final, for entries that are currently their subject's representative
	dead := map[nodeIx]bool{} // absorbed into another entry; skip when its own turn comes up

	place := func(ix nodeIx) {
		if _, ok := pos[ix]; ok || dead[ix] {
			return
		}
		pos[ix] = len(final)
		final = append(final, ix)
	}

	for _, c := range rootSet {
		if dead[c] {
			continue
		}
		subj := t.subjectOf(c)
		if subj == "" {
			place(c)
			continue
		}
		rep := table[subj]
		if rep == c {
			place(c)
			continue
		}

		// c shares a subject with the table's representative: merge it
		// in. merge() may return a fresh wrapping dummy in place of rep.
		newRep := t.merge(rep, c)
		dead[c] = true
		table[subj] = newRep
		if newRep == rep {
			place(rep)
			continue
		}
		dead[rep] = true
		if i, ok := pos[rep]; ok {
			final[i] = newRep
			delete(pos, rep)
			pos[newRep] = i
		} else {
			place(newRep)
		}
	}

	t.relink(t.root, final)
}

// preferOver reports whether candidate should replace existing as a
// subject table's representative: dummies beat real messages, and
// non-reply subjects beat replies.
func (t *threader) preferOver(existing, candidate nodeIx) bool {
	if t.isDummy(existing) {
		return false
	}
	if t.isDummy(candidate) {
		return true
	}
	return t.subjectIsReply(existing) && !t.subjectIsReply(candidate)
}

// merge folds newc into existing per the three JWZ strategies, returning
// the container that should now represent the subject group (usually
// existing, except when both were real messages and a fresh wrapping
// dummy was created).
func (t *threader) merge(existing, newc nodeIx) nodeIx {
	switch {
	case t.isDummy(existing) && t.isDummy(newc):
		// splice newc's children onto existing's tail.
		for gc := t.nodes[newc].firstChild; gc != noNode; {
			next := t.nodes[gc].nextSib
			t.appendChild(existing, gc)
			gc = next
		}
		return existing

	case t.isDummy(existing) || t.subjectIsReply(newc):
		t.appendChild(existing, newc)
		return existing

	default:
		dummy := t.new(nil)
		t.appendChild(dummy, existing)
		t.appendChild(dummy, newc)
		return dummy
	}
}
