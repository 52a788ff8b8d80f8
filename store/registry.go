// Package store is a registry of blob-store backends,
// so that a store can be created from a configuration map.
// Each backend package registers itself in an init function;
// import it for its side effects to make it available.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
)

// Factory creates a store from its configuration.
type Factory func(context.Context, map[string]interface{}) (vs.Store, error)

var registry = make(map[string]Factory)

// Register makes a backend available to Create under the given key.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a store of the type registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (vs.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Types lists the registered store types.
func Types() []string {
	result := make([]string, 0, len(registry))
	for k := range registry {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// CreateNested creates the store described by the "nested" entry of conf.
// Decorator stores use it.
func CreateNested(ctx context.Context, conf map[string]interface{}) (vs.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	s, err := Create(ctx, nestedType, nested)
	return s, errors.Wrap(err, "creating nested store")
}

// Int extracts an integer parameter from a configuration map.
// Config decoders produce numbers of various types;
// all of them are accepted.
func Int(conf map[string]interface{}, name string) (int, bool) {
	switch v := conf[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}
