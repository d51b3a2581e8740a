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

import "fmt"

// nodeIx is a stable index into a threader's node arena. Using indices
// instead of intrusive pointers means the cycle check below is a plain
// walk over integers, with no aliasing hazards. See DESIGN.md.
type nodeIx int

const noNode nodeIx = -1

// container is an arena node: a dummy placeholder if article is nil, a
// real message otherwise.
type container struct {
	article                        Article
	parent, firstChild, nextSib    nodeIx
}

// Node is the read-only view of a container handed back to callers.
type Node struct {
	t   *threader
	idx nodeIx
}

// Article returns the node's message, or (nil, false) if this is a dummy
// placeholder.
func (n *Node) Article() (Article, bool) {
	c := n.t.nodes[n.idx]
	if c.article == nil {
		return nil, false
	}
	return c.article, true
}

// Children returns the node's children, oldest-first (phase 4 already
// reversed storage order so this is a plain left-to-right walk).
func (n *Node) Children() []*Node {
	var out []*Node
	for c := n.t.nodes[n.idx].firstChild; c != noNode; c = n.t.nodes[c].nextSib {
		out = append(out, &Node{t: n.t, idx: c})
	}
	return out
}

// NextSibling returns the following sibling, or nil if none.
func (n *Node) NextSibling() *Node {
	sib := n.t.nodes[n.idx].nextSib
	if sib == noNode {
		return nil
	}
	return &Node{t: n.t, idx: sib}
}

type threader struct {
	nodes       []container
	idTable     map[string]nodeIx
	bogusCount  int
	root        nodeIx
}

func (t *threader) new(article Article) nodeIx {
	t.nodes = append(t.nodes, container{article: article, parent: noNode, firstChild: noNode, nextSib: noNode})
	return nodeIx(len(t.nodes) - 1)
}

// fetchOrCreate returns the container bound to id, creating a dummy
// placeholder if none exists yet.
func (t *threader) fetchOrCreate(id string) nodeIx {
	if ix, ok := t.idTable[id]; ok {
		return ix
	}
	ix := t.new(nil)
	t.idTable[id] = ix
	return ix
}

// isDummy reports whether node ix has no bound message.
func (t *threader) isDummy(ix nodeIx) bool {
	return t.nodes[ix].article == nil
}

// isDescendant reports whether target appears in root's subtree (walked
// via firstChild/nextSib), root included.
func (t *threader) isDescendant(root, target nodeIx) bool {
	if root == noNode {
		return false
	}
	if root == target {
		return true
	}
	for c := t.nodes[root].firstChild; c != noNode; c = t.nodes[c].nextSib {
		if t.isDescendant(c, target) {
			return true
		}
	}
	return false
}

// detach removes child from its current parent's children list, if any.
func (t *threader) detach(child nodeIx) {
	p := t.nodes[child].parent
	if p == noNode {
		return
	}
	if t.nodes[p].firstChild == child {
		t.nodes[p].firstChild = t.nodes[child].nextSib
	} else {
		prev := t.nodes[p].firstChild
		for prev != noNode && t.nodes[prev].nextSib != child {
			prev = t.nodes[prev].nextSib
		}
		if prev != noNode {
			t.nodes[prev].nextSib = t.nodes[child].nextSib
		}
	}
	t.nodes[child].parent = noNode
	t.nodes[child].nextSib = noNode
}

// prependChild attaches child as the new first child of parent. Like the
// intrusive-pointer original, insertion is O(1) at the head; phase 4
// (reverseChildren) restores oldest-first iteration order afterwards.
func (t *threader) prependChild(parent, child nodeIx) {
	t.detach(child)
	t.nodes[child].parent = parent
	t.nodes[child].nextSib = t.nodes[parent].firstChild
	t.nodes[parent].firstChild = child
}

// appendChild attaches child as the new last child of parent. Used only
// where insertion order must be preserved as-is (subject-merge phase,
// which runs after the order has already been normalized to oldest-first).
func (t *threader) appendChild(parent, child nodeIx) {
	t.detach(child)
	t.nodes[child].parent = parent
	t.nodes[child].nextSib = noNode
	if t.nodes[parent].firstChild == noNode {
		t.nodes[parent].firstChild = child
		return
	}
	last := t.nodes[parent].firstChild
	for t.nodes[last].nextSib != noNode {
		last = t.nodes[last].nextSib
	}
	t.nodes[last].nextSib = child
}

// trySetParent sets child.parent = parent, refusing if child already has
// a parent or if the link would create a cycle (parent already reachable
// as a descendant of child).
func (t *threader) trySetParent(child, parent nodeIx) bool {
	if t.nodes[child].parent != noNode {
		return false
	}
	if t.isDescendant(child, parent) {
		return false
	}
	t.prependChild(parent, child)
	return true
}

// forceSetParent detaches child's current parent (if any) and attaches
// it to parent, refusing only on cycle.
func (t *threader) forceSetParent(child, parent nodeIx) bool {
	if t.isDescendant(child, parent) {
		return false
	}
	t.prependChild(parent, child)
	return true
}

// Thread runs the five-phase JWZ algorithm over messages and returns the
// first child of the synthetic root, or nil if messages is empty.
func Thread(messages []Article) *Node {
	t := &threader{idTable: map[string]nodeIx{}}
	t.root = t.new(nil)

	// Phase 1: build containers.
	for _, m := range messages {
		id := m.MessageID()
		c := t.fetchOrCreate(id)
		if t.nodes[c].article != nil {
			bogus := fmt.Sprintf("<Bogus-id:%d>", t.bogusCount)
			t.bogusCount++
			c = t.new(nil)
			t.idTable[bogus] = c
		}
		t.nodes[c].article = m

		var prev nodeIx = noNode
		for _, ref := range m.References() {
			rc := t.fetchOrCreate(ref)
			if prev != noNode {
				t.trySetParent(rc, prev)
			}
			prev = rc
		}
		if prev != noNode {
			t.forceSetParent(c, prev)
		}
	}

	// Phase 2: find root set — every parentless container becomes a
	// child of the synthetic root.
	for ix := range t.nodes {
		n := nodeIx(ix)
		if n == t.root {
			continue
		}
		if t.nodes[n].parent == noNode {
			t.prependChild(t.root, n)
		}
	}

	// Phase 3: prune empty containers.
	t.pruneChildren(t.root)

	// Phase 4: reverse child order everywhere so iteration is oldest-first.
	t.reverseChildren(t.root)

	// Phase 5: gather by subject, merging subject-compatible roots.
	t.gatherBySubject()

	if t.nodes[t.root].firstChild == noNode {
		return nil
	}
	return &Node{t: t, idx: t.nodes[t.root].firstChild}
}

func (t *threader) countChildren(ix nodeIx) int {
	n := 0
	for c := t.nodes[ix].firstChild; c != noNode; c = t.nodes[c].nextSib {
		n++
	}
	return n
}

// pruneChildren rebuilds parent's children list, dropping empty dummies,
// promoting the children of other dummies, and recursing into survivors.
// Runs post-order, as required by spec: a dummy's subtree is pruned
// before deciding whether to keep or promote the dummy itself.
func (t *threader) pruneChildren(parent nodeIx) {
	var kept []nodeIx
	child := t.nodes[parent].firstChild
	for child != noNode {
		next := t.nodes[child].nextSib
		switch {
		case t.nodes[child].article == nil && t.nodes[child].firstChild == noNode:
			// empty dummy, no children: drop.

		case t.nodes[child].article == nil:
			t.pruneChildren(child)
			childCount := t.countChildren(child)
			if parent == t.root && childCount > 1 {
				// preserve thread boundary
				kept = append(kept, child)
			} else {
				gc := t.nodes[child].firstChild
				for gc != noNode {
					gcNext := t.nodes[gc].nextSib
					t.nodes[gc].parent = parent
					kept = append(kept, gc)
					gc = gcNext
				}
			}

		default:
			t.pruneChildren(child)
			kept = append(kept, child)
		}
		child = next
	}
	t.relink(parent, kept)
}

// relink rebuilds parent's firstChild/nextSib chain from an ordered list
// of already-reparented children.
func (t *threader) relink(parent nodeIx, children []nodeIx) {
	if len(children) == 0 {
		t.nodes[parent].firstChild = noNode
		return
	}
	t.nodes[parent].firstChild = children[0]
	for i, c := range children {
		t.nodes[c].parent = parent
		if i+1 < len(children) {
			t.nodes[c].nextSib = children[i+1]
		} else {
			t.nodes[c].nextSib = noNode
		}
	}
}

// reverseChildren reverses every container's child list (recursively),
// turning the construction order (newest-first, since attachment
// prepends logically through append+later reversal) into oldest-first
// iteration order.
func (t *threader) reverseChildren(ix nodeIx) {
	var order []nodeIx
	for c := t.nodes[ix].firstChild; c != noNode; c = t.nodes[c].nextSib {
		order = append(order, c)
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	t.relink(ix, order)
	for _, c := range order {
		t.reverseChildren(c)
	}
}
