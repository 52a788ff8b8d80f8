package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
)

// ErrNoTags is the error from the tag methods of NestedTags
// when the nested store is not a vs.TagStore.
var ErrNoTags = errors.New("nested store has no tags")

// NestedTags implements vs.TagStore by delegating to a nested store.
// Decorator stores embed it so that they are TagStores
// exactly when the stores they wrap are.
type NestedTags struct {
	S vs.Store
}

var _ vs.TagStore = NestedTags{}

func (n NestedTags) tags() (vs.TagStore, error) {
	if t, ok := n.S.(vs.TagStore); ok {
		return t, nil
	}
	return nil, errors.Wrapf(ErrNoTags, "%T", n.S)
}

// GetTag implements vs.TagGetter.
func (n NestedTags) GetTag(ctx context.Context, name string) (vs.Key, error) {
	t, err := n.tags()
	if err != nil {
		return vs.Zero, err
	}
	return t.GetTag(ctx, name)
}

// ListTags implements vs.TagGetter.
func (n NestedTags) ListTags(ctx context.Context, start string, f func(string, vs.Key) error) error {
	t, err := n.tags()
	if err != nil {
		return err
	}
	return t.ListTags(ctx, start, f)
}

// TestAndSet implements vs.TagStore.
func (n NestedTags) TestAndSet(ctx context.Context, name string, old, new *vs.Key) (bool, error) {
	t, err := n.tags()
	if err != nil {
		return false, err
	}
	return t.TestAndSet(ctx, name, old, new)
}

// Watch implements vs.TagStore.
// If the nested store has no tags there is nothing to watch,
// and the returned cancel function does nothing.
func (n NestedTags) Watch(name string, f vs.WatchFunc) (cancel func()) {
	t, err := n.tags()
	if err != nil {
		return func() {}
	}
	return t.Watch(name, f)
}
