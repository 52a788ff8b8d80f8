package vs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// MaxConcurrency bounds the number of goroutines GetMulti and PutMulti use.
var MaxConcurrency = 16

// GetMulti gets multiple blobs with a single call,
// using up to MaxConcurrency concurrent Get calls.
// The return value is a mapping of input keys to the blobs that were found in g.
// The returned error may be a MultiErr,
// mapping input keys to errors encountered retrieving those specific keys.
// This function may return a successful partial result even in case of error.
// In particular, when the error return is a MultiErr,
// every input key appears in either the result map or the MultiErr map.
func GetMulti(ctx context.Context, g Getter, keys []Key) (map[Key]Blob, error) {
	var (
		mu     sync.Mutex
		res    = make(map[Key]Blob)
		errmap MultiErr
	)

	p := pool.New().WithMaxGoroutines(MaxConcurrency).WithContext(ctx)
	for _, k := range keys {
		k := k
		p.Go(func(ctx context.Context) error {
			blob, err := g.Get(ctx, k)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if errmap == nil {
					errmap = make(MultiErr)
				}
				errmap[k] = err
				return nil
			}
			res[k] = blob
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return res, err
	}
	if errmap != nil {
		return res, errmap
	}
	return res, nil
}

// MultiErr is a type of error returned by GetMulti and PutMulti.
// It maps individual keys to errors encountered trying to Get or Put them.
type MultiErr map[Key]error

// Error implements the error interface.
func (e MultiErr) Error() string {
	keys := make([]Key, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	strs := make([]string, 0, len(keys))
	for _, k := range keys {
		strs = append(strs, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return "error(s): " + strings.Join(strs, "; ")
}

// PutMulti stores multiple blobs with a single call,
// using up to MaxConcurrency concurrent Put calls.
// The return value is a mapping of input blobs' keys to a boolean indicating whether each was a new addition to s.
// The returned error may be a MultiErr,
// mapping input blobs' keys to errors encountered writing those specific blobs.
func PutMulti(ctx context.Context, s Store, blobs []Blob) (map[Key]bool, error) {
	var (
		mu     sync.Mutex
		res    = make(map[Key]bool)
		errmap MultiErr
	)

	p := pool.New().WithMaxGoroutines(MaxConcurrency).WithContext(ctx)
	for _, b := range blobs {
		b := b
		p.Go(func(ctx context.Context) error {
			k, added, err := s.Put(ctx, b)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if errmap == nil {
					errmap = make(MultiErr)
				}
				errmap[b.Key()] = err
				return nil
			}
			res[k] = added
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return res, err
	}
	if errmap != nil {
		return res, errmap
	}
	return res, nil
}
