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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeArticle struct {
	id      string
	refs    []string
	subject string
}

func (a *fakeArticle) MessageID() string         { return a.id }
func (a *fakeArticle) References() []string      { return a.refs }
func (a *fakeArticle) SimplifiedSubject() string { return SimplifySubject(a.subject) }
func (a *fakeArticle) SubjectIsReply() bool {
	return SimplifySubject(a.subject) != a.subject || hasReplyPrefix(a.subject)
}

// hasReplyPrefix reports the raw prefix test without relying on simplification
// collapsing it away, since SubjectIsReply must reflect the original header.
func hasReplyPrefix(s string) bool {
	return reReply.MatchString(trimLeadingSpace(s))
}

func msg(id, subject string, refs ...string) *fakeArticle {
	return &fakeArticle{id: id, subject: subject, refs: refs}
}

func collectIDs(n *Node) []string {
	if n == nil {
		return nil
	}
	var out []string
	for cur := n; cur != nil; cur = cur.NextSibling() {
		if a, ok := cur.Article(); ok {
			out = append(out, a.MessageID())
		} else {
			out = append(out, "<dummy>")
		}
		out = append(out, collectIDs(firstChildOf(cur))...)
	}
	return out
}

func firstChildOf(n *Node) *Node {
	kids := n.Children()
	if len(kids) == 0 {
		return nil
	}
	return kids[0]
}

func TestThreadSimpleChain(t *testing.T) {
	a := msg("<1>", "hello")
	b := msg("<2>", "Re: hello", "<1>")
	c := msg("<3>", "Re: hello", "<1>", "<2>")

	root := Thread([]Article{a, b, c})
	require.NotNil(t, root)
	art, ok := root.Article()
	require.True(t, ok)
	require.Equal(t, "<1>", art.MessageID())
	require.Nil(t, root.NextSibling())

	kids := root.Children()
	require.Len(t, kids, 1)
	bArt, ok := kids[0].Article()
	require.True(t, ok)
	require.Equal(t, "<2>", bArt.MessageID())

	grandkids := kids[0].Children()
	require.Len(t, grandkids, 1)
	cArt, ok := grandkids[0].Article()
	require.True(t, ok)
	require.Equal(t, "<3>", cArt.MessageID())
}

func TestThreadMissingParentDummyIsPruned(t *testing.T) {
	// <2> references <1>, but <1> never arrives: the dummy standing in
	// for <1> has <2> as its only child, so pruning promotes <2> into the
	// root set in the dummy's place.
	b := msg("<2>", "orphan reply", "<1>")
	root := Thread([]Article{b})
	require.NotNil(t, root)
	bArt, ok := root.Article()
	require.True(t, ok, "a dummy with a single child should be pruned")
	require.Equal(t, "<2>", bArt.MessageID())

	require.Empty(t, root.Children())
	require.Nil(t, root.NextSibling())
}

func TestThreadDuplicateMessageIDGetsBogusID(t *testing.T) {
	a1 := msg("<dup>", "first")
	a2 := msg("<dup>", "second, same id")
	root := Thread([]Article{a1, a2})
	require.NotNil(t, root)

	// both should appear in the root set as distinct siblings, since the
	// second occupies a synthesized bogus-id container.
	var subjects []string
	for cur := root; cur != nil; cur = cur.NextSibling() {
		a, ok := cur.Article()
		require.True(t, ok)
		subjects = append(subjects, a.SimplifiedSubject())
	}
	require.ElementsMatch(t, []string{"first", "second, same id"}, subjects)
}

func TestThreadSubjectGatherMergesRootsWithoutReferences(t *testing.T) {
	// spec scenario: A is "Re: foo" with no references, B is "foo" with
	// no references. Since exactly one side is a reply, that side becomes
	// a child of the other directly, with no synthetic dummy parent.
	a := msg("<a>", "Re: foo")
	b := msg("<b>", "foo")

	root := Thread([]Article{a, b})
	require.NotNil(t, root)
	require.Nil(t, root.NextSibling(), "exactly one root-set entry after merge")

	bArt, ok := root.Article()
	require.True(t, ok, "the non-reply message becomes the surviving root")
	require.Equal(t, "<b>", bArt.MessageID())

	kids := root.Children()
	require.Len(t, kids, 1)
	aArt, ok := kids[0].Article()
	require.True(t, ok)
	require.Equal(t, "<a>", aArt.MessageID())
}

func TestThreadSubjectGatherCreatesDummyWhenNeitherIsReply(t *testing.T) {
	// Neither subject is a reply: the merge has no basis for ordering one
	// under the other, so a fresh dummy parent wraps both.
	a := msg("<a>", "foo")
	b := msg("<b>", "foo")

	root := Thread([]Article{a, b})
	require.NotNil(t, root)
	require.Nil(t, root.NextSibling())

	_, ok := root.Article()
	require.False(t, ok, "merging two non-reply messages with the same subject wraps them in a dummy")

	kids := root.Children()
	require.Len(t, kids, 2)
	var ids []string
	for _, k := range kids {
		art, ok := k.Article()
		require.True(t, ok)
		ids = append(ids, art.MessageID())
	}
	require.ElementsMatch(t, []string{"<a>", "<b>"}, ids)
}

func TestThreadCycleViaReferencesIsBroken(t *testing.T) {
	// <1> references <2>, <2> references <1>: a naive implementation
	// would loop forever walking firstChild/nextSib. The second link
	// must be refused.
	a := msg("<1>", "a", "<2>")
	b := msg("<2>", "b", "<1>")

	root := Thread([]Article{a, b})
	require.NotNil(t, root)

	// whichever attaches first wins; the other is refused as a cycle and
	// stays in (or returns to) the root set. Either way traversal must
	// terminate and visit each id exactly once.
	ids := collectIDs(root)
	var real []string
	for _, id := range ids {
		if id != "<dummy>" {
			real = append(real, id)
		}
	}
	require.ElementsMatch(t, []string{"<1>", "<2>"}, real)
}

func TestThreadEmptyInputReturnsNil(t *testing.T) {
	require.Nil(t, Thread(nil))
}

func TestThreadIsIdempotentOnRepeatedIDs(t *testing.T) {
	a := msg("<1>", "x")
	b := msg("<2>", "Re: x", "<1>")

	root1 := Thread([]Article{a, b})
	root2 := Thread([]Article{a, b})
	require.Equal(t, collectIDs(root1), collectIDs(root2))
}

func TestPruneChildrenDropsEmptyDummy(t *testing.T) {
	// <2> references an id that nothing ever binds, and <2> itself has
	// no children: the dummy for the missing reference has a single
	// child and is pruned, and no childless dummy may be left in the
	// final tree.
	b := msg("<2>", "solo", "<missing>")
	root := Thread([]Article{b})
	require.NotNil(t, root)

	for cur := root; cur != nil; cur = cur.NextSibling() {
		if _, ok := cur.Article(); !ok {
			require.NotEmpty(t, cur.Children(), "no empty dummy should survive pruning")
		}
	}
}

func TestSimplifySubjectStripsReplyPrefixesRepeatedly(t *testing.T) {
	require.Equal(t, "foo", SimplifySubject("Re: Re[2]: Re(3): foo"))
	require.Equal(t, "foo", SimplifySubject("  Re: foo"))
	require.Equal(t, "foo", SimplifySubject("RE: foo"))
}

func TestSimplifySubjectCollapsesNoSubjectSentinel(t *testing.T) {
	require.Equal(t, "", SimplifySubject("(no subject)"))
	require.Equal(t, "", SimplifySubject("(No Subject)"))
}

func TestSimplifySubjectTrimsTrailingControlChars(t *testing.T) {
	require.Equal(t, "foo", SimplifySubject("foo\r\n"))
}

func TestSimplifySubjectLeavesPlainSubjectUntouched(t *testing.T) {
	require.Equal(t, "just a subject", SimplifySubject("just a subject"))
}
