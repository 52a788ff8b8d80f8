package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Conflict is the error reported when a three-way merge
// cannot reconcile two diverging values.
type Conflict struct {
	// Path locates the conflict within the merged value,
	// outermost step first.
	// It is empty for a conflict on the value as a whole.
	Path []string

	// Reason is a human-readable explanation.
	Reason string
}

func (c *Conflict) Error() string {
	if len(c.Path) == 0 {
		return "conflict: " + c.Reason
	}
	return fmt.Sprintf("conflict at %s: %s", strings.Join(c.Path, "/"), c.Reason)
}

// Conflictf produces a *Conflict with a formatted reason.
func Conflictf(format string, args ...interface{}) error {
	return &Conflict{Reason: fmt.Sprintf(format, args...)}
}

// Conflicts is a list of conflicts,
// reported by merges that reconcile many sub-values
// and keep going after some of them fail.
type Conflicts []*Conflict

func (cs Conflicts) Error() string {
	if len(cs) == 1 {
		return cs[0].Error()
	}
	strs := make([]string, 0, len(cs))
	for _, c := range cs {
		strs = append(strs, c.Error())
	}
	return fmt.Sprintf("%d conflicts: %s", len(cs), strings.Join(strs, "; "))
}

// Sort orders cs by path.
func (cs Conflicts) Sort() {
	sort.SliceStable(cs, func(i, j int) bool {
		return strings.Join(cs[i].Path, "/") < strings.Join(cs[j].Path, "/")
	})
}

// IsConflict tells whether err is (or wraps) a *Conflict or Conflicts.
func IsConflict(err error) bool {
	return ConflictsOf(err) != nil
}

// ConflictsOf extracts the conflicts from err,
// which may be a *Conflict or Conflicts, possibly wrapped.
// It returns nil if err is not a conflict.
func ConflictsOf(err error) Conflicts {
	var cs Conflicts
	if errors.As(err, &cs) {
		return cs
	}
	var c *Conflict
	if errors.As(err, &c) {
		return Conflicts{c}
	}
	return nil
}

// Prefix prepends step to the path of every conflict in err.
// Other errors are returned unchanged.
func Prefix(step string, err error) error {
	cs := ConflictsOf(err)
	if cs == nil {
		return err
	}
	out := make(Conflicts, 0, len(cs))
	for _, c := range cs {
		path := make([]string, 0, 1+len(c.Path))
		path = append(path, step)
		path = append(path, c.Path...)
		out = append(out, &Conflict{Path: path, Reason: c.Reason})
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Collector gathers conflicts from many sub-merges.
// The zero value is ready to use.
type Collector struct {
	cs Conflicts
}

// Add records err if it is a conflict,
// prefixing its paths with step,
// and returns any other error unchanged.
func (c *Collector) Add(step string, err error) error {
	if err == nil {
		return nil
	}
	cs := ConflictsOf(Prefix(step, err))
	if cs == nil {
		return err
	}
	c.cs = append(c.cs, cs...)
	return nil
}

// Err returns the gathered conflicts sorted by path,
// or nil if there were none.
func (c *Collector) Err() error {
	if len(c.cs) == 0 {
		return nil
	}
	c.cs.Sort()
	if len(c.cs) == 1 {
		return c.cs[0]
	}
	return c.cs
}
