// Package patricia implements the bit-indexed PATRICIA trie described in
// spec.md §4.B: a single-family trie over addr.RawPrefix keyed by
// (width, bytes), storing prefix nodes (carrying a key) and glue nodes
// (pure branch points, no key) the way the classic PATRICIA / radix
// routing-table algorithm does.
package patricia

import (
	"github.com/CSUNetSec/bgpfilter/addr"
)

// node is either a prefix node (isGlue == false, prefix is the stored
// key) or a glue node introduced purely to branch the tree at `bit`.
type node struct {
	bit    uint8
	isGlue bool
	prefix addr.RawPrefix
	parent *node
	link   [2]*node
}

// Trie is a PATRICIA trie for a single address family.
type Trie struct {
	family addr.Family
	root   *node
	free   []*node // reuse pool; spec.md §4.B describes size-binned
	// free lists backed by fixed 2KiB blocks. Node size here is
	// uniform (RawPrefix is fixed-size), so a single free slice
	// suffices — the block/bin machinery collapses to this without
	// changing the allocation/reuse discipline.
	count int
}

// New returns an empty trie for the given address family.
func New(family addr.Family) *Trie {
	return &Trie{family: family}
}

// Len returns the number of stored prefixes.
func (t *Trie) Len() int { return t.count }

func (t *Trie) alloc() *node {
	if n := len(t.free); n > 0 {
		nd := t.free[n-1]
		t.free = t.free[:n-1]
		*nd = node{}
		return nd
	}
	return &node{}
}

func (t *Trie) release(n *node) {
	t.free = append(t.free, n)
}

func bitAt(b [16]byte, bit int) int {
	byteIdx := bit / 8
	if byteIdx >= len(b) {
		return 0
	}
	shift := 7 - uint(bit%8)
	return int((b[byteIdx] >> shift) & 1)
}

// matches reports whether a and b agree on bits [0, upto).
func matches(a, b [16]byte, upto int) bool {
	full := upto / 8
	for i := 0; i < full; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	rem := upto % 8
	if rem == 0 {
		return true
	}
	mask := byte(0xff00 >> rem)
	return a[full]&mask == b[full]&mask
}

// differAt returns the index of the first bit at which a and b differ,
// restricted to [0, maxBits). Returns maxBits if they agree throughout.
func differAt(a, b [16]byte, maxBits int) int {
	for i := 0; i < maxBits; i++ {
		if bitAt(a, i) != bitAt(b, i) {
			return i
		}
	}
	return maxBits
}

// Insert stores pfx in the trie, replacing any existing entry with the
// identical (width, bytes) key.
func (t *Trie) Insert(pfx addr.RawPrefix) {
	if t.root == nil {
		n := t.alloc()
		n.bit = pfx.Width
		n.prefix = pfx
		t.root = n
		t.count++
		return
	}

	// Descend while each visited node's key is a prefix of pfx's bits
	// and its declared width does not exceed pfx's.
	var matched *node
	cur := t.root
	for cur != nil && int(cur.bit) <= int(pfx.Width) && matches(cur.prefix.Bytes, pfx.Bytes, int(cur.bit)) {
		matched = cur
		if cur.bit == pfx.Width {
			// exact key already present (or a glue at the exact
			// width — promote it).
			wasGlue := cur.isGlue
			cur.isGlue = false
			cur.prefix = pfx
			if wasGlue {
				t.count++
			}
			return
		}
		cur = cur.link[bitAt(pfx.Bytes, int(cur.bit))]
	}

	if cur == nil {
		// Insert as a new leaf hanging off matched (or as the root).
		n := t.alloc()
		n.bit = pfx.Width
		n.prefix = pfx
		n.parent = matched
		if matched == nil {
			t.root = n
		} else {
			matched.link[bitAt(pfx.Bytes, int(matched.bit))] = n
		}
		t.count++
		return
	}

	// cur exists but diverges from pfx before either key ends. Find the
	// first differing bit, bounded by both widths.
	limit := int(cur.bit)
	if int(pfx.Width) < limit {
		limit = int(pfx.Width)
	}
	differ := differAt(cur.prefix.Bytes, pfx.Bytes, limit)

	branch := t.alloc()
	branch.bit = uint8(differ)
	branch.parent = cur.parent
	if cur.parent == nil {
		t.root = branch
	} else {
		cur.parent.link[bitAt(cur.prefix.Bytes, int(cur.parent.bit))] = branch
	}

	if differ == int(pfx.Width) {
		// pfx is a proper prefix of cur's key: branch itself becomes
		// the prefix node for pfx, with cur hanging below it.
		branch.isGlue = false
		branch.prefix = pfx
		cur.parent = branch
		branch.link[bitAt(cur.prefix.Bytes, differ)] = cur
	} else {
		branch.isGlue = true
		// Glue nodes carry representative bytes (shared by both
		// children through bit `differ`) purely so that descent and
		// coverage checks below `differ` keep working; they hold no
		// key of their own.
		branch.prefix.Bytes = pfx.Bytes
		leaf := t.alloc()
		leaf.bit = pfx.Width
		leaf.prefix = pfx
		leaf.parent = branch
		cur.parent = branch
		branch.link[bitAt(pfx.Bytes, differ)] = leaf
		branch.link[bitAt(cur.prefix.Bytes, differ)] = cur
	}
	t.count++
}

// ExactMatch returns the stored prefix whose (width, bytes) exactly
// equals pfx.
func (t *Trie) ExactMatch(pfx addr.RawPrefix) (addr.RawPrefix, bool) {
	cur := t.root
	for cur != nil && int(cur.bit) <= int(pfx.Width) && matches(cur.prefix.Bytes, pfx.Bytes, int(cur.bit)) {
		if !cur.isGlue && cur.bit == pfx.Width {
			return cur.prefix, true
		}
		if cur.bit == pfx.Width {
			break
		}
		cur = cur.link[bitAt(pfx.Bytes, int(cur.bit))]
	}
	return addr.RawPrefix{}, false
}

// IsSubnetOf reports whether some stored prefix node with width <=
// pfx.Width covers pfx (pfx is a subnet of a stored prefix).
func (t *Trie) IsSubnetOf(pfx addr.RawPrefix) bool {
	cur := t.root
	for cur != nil && int(cur.bit) <= int(pfx.Width) && matches(cur.prefix.Bytes, pfx.Bytes, int(cur.bit)) {
		if !cur.isGlue {
			return true
		}
		if cur.bit == pfx.Width {
			break
		}
		cur = cur.link[bitAt(pfx.Bytes, int(cur.bit))]
	}
	return false
}

// IsSupernetOf reports whether some stored prefix node with width >=
// pfx.Width lies within pfx (a stored prefix is a subnet of pfx).
func (t *Trie) IsSupernetOf(pfx addr.RawPrefix) bool {
	return t.anyCovered(t.root, pfx)
}

func (t *Trie) anyCovered(n *node, pfx addr.RawPrefix) bool {
	if n == nil || int(n.bit) < int(pfx.Width) && !matches(n.prefix.Bytes, pfx.Bytes, int(n.bit)) {
		return false
	}
	if int(n.bit) < int(pfx.Width) {
		// n's key agrees with pfx so far; only the branch selected by
		// pfx's next bit can still be within pfx.
		return t.anyCovered(n.link[bitAt(pfx.Bytes, int(n.bit))], pfx)
	}
	// n.bit >= pfx.Width: n is within pfx iff its key matches pfx's
	// bits under pfx.Width. Both of n's subtrees lie within the same
	// keyspace, so check n itself and both children.
	if !matches(n.prefix.Bytes, pfx.Bytes, int(pfx.Width)) {
		return false
	}
	if !n.isGlue {
		return true
	}
	return t.anyCovered(n.link[0], pfx) || t.anyCovered(n.link[1], pfx)
}

// IsRelatedOf is the logical OR of IsSubnetOf and IsSupernetOf.
func (t *Trie) IsRelatedOf(pfx addr.RawPrefix) bool {
	return t.IsSubnetOf(pfx) || t.IsSupernetOf(pfx)
}

// Remove deletes the stored prefix exactly matching pfx, if present.
// Preserves the invariants from spec.md §4.B: a two-child node becomes
// a glue node; a freed leaf collapses its now-single-child glue parent.
func (t *Trie) Remove(pfx addr.RawPrefix) bool {
	cur := t.root
	for cur != nil && int(cur.bit) <= int(pfx.Width) && matches(cur.prefix.Bytes, pfx.Bytes, int(cur.bit)) {
		if !cur.isGlue && cur.bit == pfx.Width {
			t.removeNode(cur)
			return true
		}
		if cur.bit == pfx.Width {
			break
		}
		cur = cur.link[bitAt(pfx.Bytes, int(cur.bit))]
	}
	return false
}

func (t *Trie) removeNode(n *node) {
	t.count--
	left, right := n.link[0], n.link[1]
	if left != nil && right != nil {
		// Two children: demote to a glue node. The bytes are left in
		// place (still valid as shared-prefix bits for both children
		// through n.bit); only the "this is a stored key" flag goes.
		n.isGlue = true
		return
	}
	// At most one child: splice n out.
	child := left
	if child == nil {
		child = right
	}
	parent := n.parent
	t.release(n)
	if parent == nil {
		t.root = child
		if child != nil {
			child.parent = nil
		}
		return
	}
	side := 0
	if parent.link[1] == n {
		side = 1
	}
	parent.link[side] = child
	if child != nil {
		child.parent = parent
	}
	// If parent is now a childless glue node (both children nil) or a
	// single-child glue node, collapse it into its remaining child.
	if parent.isGlue {
		other := parent.link[0]
		if other == nil {
			other = parent.link[1]
		}
		count := 0
		if parent.link[0] != nil {
			count++
		}
		if parent.link[1] != nil {
			count++
		}
		if count <= 1 {
			grand := parent.parent
			t.release(parent)
			if grand == nil {
				t.root = other
				if other != nil {
					other.parent = nil
				}
				return
			}
			gside := 0
			if grand.link[1] == parent {
				gside = 1
			}
			grand.link[gside] = other
			if other != nil {
				other.parent = grand
			}
		}
	}
}
