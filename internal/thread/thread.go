// Package thread groups messages into conversations using a simplified
// JWZ-style header-chain analysis and derives stable conversation
// identifiers from thread roots.
package thread

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/nhle/mailcore/internal/model"
)

// ConvIDLength is the length of a derived conversation identifier in
// hex characters. Identifiers this short can collide, which is why
// prefix resolution rather than equality is the public lookup contract.
const ConvIDLength = 12

// DeriveConversationID computes the stable conversation identifier for
// a thread from its root message identifier. Identical roots always
// yield identical identifiers.
func DeriveConversationID(rootMessageID string) string {
	sum := sha256.Sum256([]byte(rootMessageID))
	return hex.EncodeToString(sum[:])[:ConvIDLength]
}

// node is an entry in the threading arena. Nodes are addressed by index;
// a node with msg == -1 is a placeholder for a referenced message that
// has not been seen yet.
type node struct {
	id       string
	msg      int // index into the input batch, -1 for placeholders
	parent   int // arena index, -1 for roots
	children []int
}

// arena holds all thread nodes for one batch, keyed by message id.
// Re-rooting a subtree touches a bounded index-addressed set instead of
// a pointer graph.
type arena struct {
	nodes []node
	index map[string]int
}

func newArena() *arena {
	return &arena{index: make(map[string]int)}
}

// intern returns the arena index for id, creating a placeholder node if
// the id has not been seen.
func (a *arena) intern(id string) int {
	if i, ok := a.index[id]; ok {
		return i
	}
	i := len(a.nodes)
	a.nodes = append(a.nodes, node{id: id, msg: -1, parent: -1})
	a.index[id] = i
	return i
}

func (a *arena) link(child, parent int) {
	if child == parent || a.nodes[child].parent != -1 {
		return
	}
	a.nodes[child].parent = parent
	a.nodes[parent].children = append(a.nodes[parent].children, child)
}

// Assign computes a conversation identifier for every message in the
// batch and returns the assignment keyed by message id.
//
// Messages are linked by walking each reference chain oldest to newest;
// a referenced message that is absent from the batch becomes a
// placeholder node, so the chain's earliest ancestor still anchors the
// thread identity. Messages with no references fall back to grouping by
// normalized subject within their account and folder, rooted at the
// earliest message of the group (ties broken by message id).
func Assign(msgs []model.Message) map[string]string {
	if len(msgs) == 0 {
		return nil
	}

	a := newArena()

	for mi := range msgs {
		m := &msgs[mi]
		ni := a.intern(m.MessageID)
		a.nodes[ni].msg = mi

		refs := referenceChain(m)
		prev := -1
		for _, ref := range refs {
			ri := a.intern(ref)
			if prev != -1 {
				a.link(ri, prev)
			}
			prev = ri
		}
		if prev != -1 {
			a.link(ni, prev)
		}
	}

	assign := make(map[string]string, len(msgs))

	// Walk each tree from its root; every reachable message gets the
	// conversation id derived from the root node's id.
	var collect func(int, string)
	collect = func(ni int, convID string) {
		n := a.nodes[ni]
		if n.msg >= 0 {
			assign[msgs[n.msg].MessageID] = convID
		}
		for _, c := range n.children {
			collect(c, convID)
		}
	}

	var subjectFallback []int // arena indices of unlinked singletons
	for ni := range a.nodes {
		n := a.nodes[ni]
		if n.parent != -1 {
			continue
		}
		root := ni
		// A placeholder root with a single child contributes nothing of
		// its own; the thread identity still hangs off the placeholder's
		// id so late-arriving ancestors re-root deterministically.
		if n.msg == -1 && len(n.children) == 0 {
			continue
		}
		if n.msg >= 0 && len(n.children) == 0 && len(referenceChain(&msgs[n.msg])) == 0 {
			subjectFallback = append(subjectFallback, ni)
			continue
		}
		collect(root, DeriveConversationID(a.nodes[root].id))
	}

	assignSubjectGroups(a, msgs, subjectFallback, assign)

	return assign
}

// assignSubjectGroups groups reference-less singleton messages by
// normalized subject within account/folder scope. The group root is the
// earliest message by timestamp; equal timestamps fall back to the
// lowest message id so the choice stays deterministic.
func assignSubjectGroups(a *arena, msgs []model.Message, roots []int, assign map[string]string) {
	type groupKey struct {
		account string
		folder  string
		subject string
	}

	groups := make(map[groupKey][]int)
	for _, ni := range roots {
		m := &msgs[a.nodes[ni].msg]
		key := groupKey{
			account: m.Account,
			folder:  m.Folder,
			subject: NormalizeSubject(m.Subject),
		}
		groups[key] = append(groups[key], a.nodes[ni].msg)
	}

	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			mi, mj := &msgs[members[i]], &msgs[members[j]]
			if !mi.Date.Equal(mj.Date) {
				return mi.Date.Before(mj.Date)
			}
			return mi.MessageID < mj.MessageID
		})
		convID := DeriveConversationID(msgs[members[0]].MessageID)
		for _, mi := range members {
			assign[msgs[mi].MessageID] = convID
		}
	}
}

// referenceChain returns the message's reference chain oldest to
// newest, with In-Reply-To appended when it is not already present.
func referenceChain(m *model.Message) []string {
	refs := make([]string, 0, len(m.References)+1)
	refs = append(refs, m.References...)
	if m.InReplyTo != "" {
		seen := false
		for _, r := range refs {
			if r == m.InReplyTo {
				seen = true
				break
			}
		}
		if !seen {
			refs = append(refs, m.InReplyTo)
		}
	}
	return refs
}

var subjectPrefixPattern = regexp.MustCompile(`(?i)^(?:(?:re|fwd|fw):\s*)+`)

// NormalizeSubject strips reply/forward prefixes and surrounding
// whitespace for subject-based grouping and display.
func NormalizeSubject(subject string) string {
	return strings.TrimSpace(subjectPrefixPattern.ReplaceAllString(subject, ""))
}
