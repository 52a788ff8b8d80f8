// Package node implements a Merkle tree of nodes in a content-addressable store.
//
// A node maps steps (path segments) either to content keys
// (the leaves of the tree)
// or to the keys of child nodes.
// Nodes are immutable:
// every change to a tree produces new nodes from the changed position up to the root,
// and a new root key,
// while unchanged subtrees are shared between the old tree and the new one.
package node

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/internal/wire"
)

// Kind tells whether an Entry is a leaf or a subtree.
type Kind int

const (
	// KindContents is a leaf entry: its key is a content key.
	KindContents Kind = iota

	// KindNode is a subtree entry: its key is a node key.
	KindNode
)

func (k Kind) String() string {
	switch k {
	case KindContents:
		return "contents"
	case KindNode:
		return "node"
	}
	return "unknown"
}

// Entry is one step of a Node.
type Entry struct {
	Step string
	Kind Kind
	Key  vs.Key
}

// Node is an immutable tree node.
// A step appears in at most one of Contents and Children.
// The zero Node is the empty node.
type Node struct {
	Contents map[string]vs.Key
	Children map[string]vs.Key
}

// IsEmpty tells whether n has no entries.
func (n *Node) IsEmpty() bool {
	return len(n.Contents) == 0 && len(n.Children) == 0
}

// Lookup finds the entry for step.
func (n *Node) Lookup(step string) (Entry, bool) {
	if k, ok := n.Contents[step]; ok {
		return Entry{Step: step, Kind: KindContents, Key: k}, true
	}
	if k, ok := n.Children[step]; ok {
		return Entry{Step: step, Kind: KindNode, Key: k}, true
	}
	return Entry{}, false
}

// Entries returns n's entries sorted by step.
func (n *Node) Entries() []Entry {
	result := make([]Entry, 0, len(n.Contents)+len(n.Children))
	for step, k := range n.Contents {
		result = append(result, Entry{Step: step, Kind: KindContents, Key: k})
	}
	for step, k := range n.Children {
		result = append(result, Entry{Step: step, Kind: KindNode, Key: k})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Step < result[j].Step })
	return result
}

func (n *Node) clone() *Node {
	result := &Node{
		Contents: make(map[string]vs.Key, len(n.Contents)),
		Children: make(map[string]vs.Key, len(n.Children)),
	}
	for step, k := range n.Contents {
		result.Contents[step] = k
	}
	for step, k := range n.Children {
		result.Children[step] = k
	}
	return result
}

// set returns a copy of n with e added,
// replacing whatever was at e.Step.
func (n *Node) set(e Entry) *Node {
	result := n.without(e.Step)
	switch e.Kind {
	case KindContents:
		result.Contents[e.Step] = e.Key
	case KindNode:
		result.Children[e.Step] = e.Key
	}
	return result
}

// add adds e to n in place.
// Only nodes not yet shared with anyone may be changed this way.
func (n *Node) add(e Entry) {
	if n.Contents == nil {
		n.Contents = make(map[string]vs.Key)
	}
	if n.Children == nil {
		n.Children = make(map[string]vs.Key)
	}
	switch e.Kind {
	case KindContents:
		n.Contents[e.Step] = e.Key
	case KindNode:
		n.Children[e.Step] = e.Key
	}
}

// without returns a copy of n with step removed.
func (n *Node) without(step string) *Node {
	result := n.clone()
	delete(result.Contents, step)
	delete(result.Children, step)
	return result
}

// Field numbers of the node encoding.
// A node is a repeated Entry message (field 1);
// an Entry has step (1), key (2), and kind (3, omitted for contents).
const (
	fieldEntry = 1

	fieldStep = 1
	fieldKey  = 2
	fieldKind = 3
)

// Encode produces the canonical encoding of n.
// Entries are written in step order,
// so equal nodes have equal encodings and therefore equal keys.
func (n *Node) Encode() vs.Blob {
	var b []byte
	for _, e := range n.Entries() {
		var eb []byte
		eb = wire.AppendString(eb, fieldStep, e.Step)
		eb = wire.AppendBytes(eb, fieldKey, e.Key[:])
		if e.Kind != KindContents {
			eb = wire.AppendVarint(eb, fieldKind, uint64(e.Kind))
		}
		b = wire.AppendBytes(b, fieldEntry, eb)
	}
	return b
}

// Key computes the key of n.
func (n *Node) Key() vs.Key {
	return n.Encode().Key()
}

// Decode parses an encoded node.
func Decode(b []byte) (*Node, error) {
	n := &Node{
		Contents: make(map[string]vs.Key),
		Children: make(map[string]vs.Key),
	}
	err := wire.Each(b, func(f wire.Field) error {
		if f.Num != fieldEntry {
			return nil
		}
		e, err := decodeEntry(f.Bytes)
		if err != nil {
			return err
		}
		if _, ok := n.Lookup(e.Step); ok {
			return errors.Errorf("duplicate step %q", e.Step)
		}
		switch e.Kind {
		case KindContents:
			n.Contents[e.Step] = e.Key
		case KindNode:
			n.Children[e.Step] = e.Key
		default:
			return errors.Errorf("step %q has unknown kind %d", e.Step, e.Kind)
		}
		return nil
	})
	return n, errors.Wrap(err, "decoding node")
}

func decodeEntry(b []byte) (Entry, error) {
	var (
		e      Entry
		hasKey bool
	)
	err := wire.Each(b, func(f wire.Field) error {
		switch f.Num {
		case fieldStep:
			e.Step = string(f.Bytes)
		case fieldKey:
			if len(f.Bytes) != len(vs.Zero) {
				return errors.Errorf("key has length %d", len(f.Bytes))
			}
			e.Key = vs.KeyFromBytes(f.Bytes)
			hasKey = true
		case fieldKind:
			e.Kind = Kind(f.Varint)
		}
		return nil
	})
	if err != nil {
		return e, errors.Wrap(err, "decoding entry")
	}
	if !hasKey {
		return e, errors.Errorf("entry %q has no key", e.Step)
	}
	return e, nil
}

// Path is a sequence of steps from a root node.
type Path []string

// ParsePath splits a slash-separated string into a Path.
// Empty steps are dropped, so "/a//b/" is the same as "a/b".
func ParsePath(s string) Path {
	var result Path
	for _, step := range strings.Split(s, "/") {
		if step != "" {
			result = append(result, step)
		}
	}
	return result
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Append returns a new Path with steps added to the end of p.
func (p Path) Append(steps ...string) Path {
	result := make(Path, 0, len(p)+len(steps))
	result = append(result, p...)
	return append(result, steps...)
}

// HasPrefix tells whether p begins with prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, step := range prefix {
		if p[i] != step {
			return false
		}
	}
	return true
}
