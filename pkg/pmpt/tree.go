// Package pmpt implements a process prefix tree: a Merkle-hashed trie of the
// activity sequences of a log.
//
// Every node is one prefix. Nodes count the sequences passing through and
// ending at them and keep the indices of those sequences in a roaring
// bitmap. The tree is the state space of prefix-based precision, and its
// root fingerprint compares two logs' control flow in constant time.
package pmpt

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Hash represents a 32-byte SHA-256 hash.
type Hash [32]byte

// String returns the truncated hex representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])[:16] + "..."
}

// FullString returns the full hex representation.
func (h Hash) FullString() string {
	return hex.EncodeToString(h[:])
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Node is one prefix of the tree.
type Node struct {
	// Hash identifies the prefix: SHA256(activity, parent hash).
	Hash     Hash
	Activity string
	Parent   *Node
	// Children are kept in insertion order.
	Children []*Node
	// Count is the number of sequences having this prefix.
	Count int64
	// Ends is the number of sequences equal to this prefix.
	Ends int64
	// Cases holds the indices of the sequences having this prefix.
	Cases *roaring.Bitmap
	Depth int

	children map[string]*Node
}

// Child returns the child for activity, or nil.
func (n *Node) Child(activity string) *Node {
	return n.children[activity]
}

// Continuing returns the number of sequences that go on after this prefix.
func (n *Node) Continuing() int64 {
	return n.Count - n.Ends
}

// NextActivities returns the sorted activities observed after the prefix.
func (n *Node) NextActivities() []string {
	out := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c.Activity)
	}
	sort.Strings(out)
	return out
}

// Prefix returns the activities from the root to this node.
func (n *Node) Prefix() []string {
	out := make([]string, n.Depth)
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		out[cur.Depth-1] = cur.Activity
	}
	return out
}

// Tree is a process prefix tree. Adding is safe for concurrent use; reads
// must not race with additions.
type Tree struct {
	mu sync.RWMutex

	// Root is the empty prefix.
	Root *Node

	// ActivityIndex maps an activity to the nodes carrying it.
	ActivityIndex map[string][]*Node

	TotalCases  int64
	TotalEvents int64
	UniqueNodes int64
	MaxDepth    int

	rootHash Hash
	dirty    bool
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	root := &Node{Cases: roaring.New(), children: make(map[string]*Node)}
	root.Hash = hashNode("", nil)
	return &Tree{Root: root, ActivityIndex: make(map[string][]*Node)}
}

// Add inserts one sequence under the given case index. Empty sequences are
// counted at the root.
func (t *Tree) Add(activities []string, caseIndex uint32) {
	t.AddWeighted(activities, caseIndex, 1)
}

// AddWeighted inserts a sequence standing for weight identical sequences.
func (t *Tree) AddWeighted(activities []string, caseIndex uint32, weight int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.TotalCases += weight
	t.TotalEvents += weight * int64(len(activities))
	cur := t.Root
	cur.Count += weight
	cur.Cases.Add(caseIndex)
	for _, a := range activities {
		next, ok := cur.children[a]
		if !ok {
			next = &Node{
				Hash:     hashNode(a, cur),
				Activity: a,
				Parent:   cur,
				Cases:    roaring.New(),
				Depth:    cur.Depth + 1,
				children: make(map[string]*Node),
			}
			cur.children[a] = next
			cur.Children = append(cur.Children, next)
			t.ActivityIndex[a] = append(t.ActivityIndex[a], next)
			t.UniqueNodes++
			if next.Depth > t.MaxDepth {
				t.MaxDepth = next.Depth
			}
		}
		next.Count += weight
		next.Cases.Add(caseIndex)
		cur = next
	}
	cur.Ends += weight
	t.dirty = true
}

// Walk visits the nodes depth-first in insertion order, root included.
// Returning false from fn skips the node's subtree.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(n *Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(t.Root)
}

// Find returns the node of a prefix, or nil.
func (t *Tree) Find(activities []string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur := t.Root
	for _, a := range activities {
		if cur = cur.children[a]; cur == nil {
			return nil
		}
	}
	return cur
}

// HasPath reports whether some sequence starts with the activities.
func (t *Tree) HasPath(activities []string) bool {
	return t.Find(activities) != nil
}

// FindActivity returns all nodes with the given activity.
func (t *Tree) FindActivity(activity string) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ActivityIndex[activity]
}

// Variant is a distinct complete sequence.
type Variant struct {
	Path  []string
	Count int64
}

// String returns the variant as an arrow-separated path.
func (v Variant) String() string {
	return strings.Join(v.Path, " -> ")
}

// Variants returns the distinct sequences, most frequent first.
func (t *Tree) Variants() []Variant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Variant
	t.Walk(func(n *Node) bool {
		if n.Ends > 0 {
			out = append(out, Variant{Path: n.Prefix(), Count: n.Ends})
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// Fingerprint returns the Merkle root hash. Trees built from logs with the
// same sequences and frequencies have equal fingerprints.
func (t *Tree) Fingerprint() Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty || t.rootHash.IsZero() {
		t.rootHash = hashSubtree(t.Root)
		t.dirty = false
	}
	return t.rootHash
}

// Equals compares two trees by fingerprint.
func (t *Tree) Equals(other *Tree) bool {
	return t.Fingerprint() == other.Fingerprint()
}

// Stats summarizes a tree.
type Stats struct {
	TotalCases   int64
	TotalEvents  int64
	UniqueNodes  int64
	MaxDepth     int
	VariantCount int
	Fingerprint  Hash
}

// Stats returns the tree statistics.
func (t *Tree) Stats() Stats {
	fp := t.Fingerprint()
	variants := t.Variants()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		TotalCases:   t.TotalCases,
		TotalEvents:  t.TotalEvents,
		UniqueNodes:  t.UniqueNodes,
		MaxDepth:     t.MaxDepth,
		VariantCount: len(variants),
		Fingerprint:  fp,
	}
}

func hashSubtree(n *Node) Hash {
	childHashes := make([]Hash, len(n.Children))
	for i, c := range n.Children {
		childHashes[i] = hashSubtree(c)
	}
	sort.Slice(childHashes, func(i, j int) bool {
		return bytes.Compare(childHashes[i][:], childHashes[j][:]) < 0
	})
	h := sha256.New()
	h.Write(n.Hash[:])
	for _, ch := range childHashes {
		h.Write(ch[:])
	}
	binary.Write(h, binary.LittleEndian, n.Count)
	binary.Write(h, binary.LittleEndian, n.Ends)

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func hashNode(activity string, parent *Node) Hash {
	h := sha256.New()
	h.Write([]byte(activity))
	if parent != nil {
		h.Write(parent.Hash[:])
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
