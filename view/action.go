package view

import (
	"fmt"

	"github.com/bobg/vs"
	"github.com/bobg/vs/node"
)

// ActionKind tells what a view Action did.
type ActionKind int

const (
	ActionRead ActionKind = iota
	ActionWrite
	ActionList
)

func (k ActionKind) String() string {
	switch k {
	case ActionRead:
		return "read"
	case ActionWrite:
		return "write"
	case ActionList:
		return "list"
	}
	return "unknown"
}

// Action is one entry in a view's log.
type Action struct {
	Kind ActionKind

	// Path is relative to the view's path.
	Path node.Path

	// Key is the content key observed by a read,
	// or written by a write.
	// It is nil when a read found nothing,
	// and for a write that removed contents.
	Key *vs.Key

	// Steps are the steps observed by a list.
	Steps []string
}

func (a Action) String() string {
	switch a.Kind {
	case ActionList:
		return fmt.Sprintf("list %s: %v", a.Path, a.Steps)
	default:
		return fmt.Sprintf("%s %s: %s", a.Kind, a.Path, describe(a.Key))
	}
}

func (a Action) clone() Action {
	result := a
	result.Path = a.Path.Append()
	if a.Key != nil {
		result.Key = vs.KeyPtr(*a.Key)
	}
	if a.Steps != nil {
		result.Steps = append([]string{}, a.Steps...)
	}
	return result
}

func describe(k *vs.Key) string {
	if k == nil {
		return "absent"
	}
	return k.String()
}
