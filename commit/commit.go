// Package commit implements a history of commits
// over trees in a node.Graph.
//
// A commit records the root of a tree,
// the commits it descends from,
// and who made it, when, and why.
// Commits can only refer to commits already stored,
// so the history is a directed acyclic graph.
package commit

import (
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/internal/wire"
)

// Info is the provenance of a commit.
type Info struct {
	Date     time.Time
	Author   string
	Messages []string

	// ID is an opaque caller-supplied identifier.
	ID string
}

// Commit is an immutable snapshot in a history.
type Commit struct {
	// Node is the root of the tree at this commit.
	// It is nil for a commit with no tree.
	Node *vs.Key

	// Parents is empty for a root commit,
	// has one element for a linear commit,
	// and two or more for a merge.
	Parents []vs.Key

	Info
}

// Field numbers of the commit encoding.
const (
	fieldNode    = 1
	fieldParent  = 2
	fieldDate    = 3
	fieldAuthor  = 4
	fieldMessage = 5
	fieldID      = 6
)

// Encode produces the encoding of c.
// Parents keep their order.
func (c *Commit) Encode() vs.Blob {
	var b []byte
	if c.Node != nil {
		b = wire.AppendBytes(b, fieldNode, c.Node[:])
	}
	for _, p := range c.Parents {
		b = wire.AppendBytes(b, fieldParent, p[:])
	}
	if !c.Date.IsZero() {
		b = wire.AppendZigzag(b, fieldDate, c.Date.UnixNano())
	}
	if c.Author != "" {
		b = wire.AppendString(b, fieldAuthor, c.Author)
	}
	for _, m := range c.Messages {
		b = wire.AppendString(b, fieldMessage, m)
	}
	if c.ID != "" {
		b = wire.AppendString(b, fieldID, c.ID)
	}
	return b
}

// Key computes the key of c.
func (c *Commit) Key() vs.Key {
	return c.Encode().Key()
}

// Decode parses an encoded commit.
func Decode(b []byte) (*Commit, error) {
	c := new(Commit)
	err := wire.Each(b, func(f wire.Field) error {
		switch f.Num {
		case fieldNode:
			k, err := keyField(f)
			if err != nil {
				return errors.Wrap(err, "decoding node key")
			}
			c.Node = &k

		case fieldParent:
			k, err := keyField(f)
			if err != nil {
				return errors.Wrapf(err, "decoding parent %d", len(c.Parents))
			}
			c.Parents = append(c.Parents, k)

		case fieldDate:
			c.Date = time.Unix(0, f.Zigzag()).UTC()

		case fieldAuthor:
			c.Author = string(f.Bytes)

		case fieldMessage:
			c.Messages = append(c.Messages, string(f.Bytes))

		case fieldID:
			c.ID = string(f.Bytes)
		}
		return nil
	})
	return c, errors.Wrap(err, "decoding commit")
}

func keyField(f wire.Field) (vs.Key, error) {
	if len(f.Bytes) != len(vs.Zero) {
		return vs.Zero, errors.Errorf("key has length %d", len(f.Bytes))
	}
	return vs.KeyFromBytes(f.Bytes), nil
}
