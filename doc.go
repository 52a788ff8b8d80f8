// Package vs is a versioned, content-addressable store.
//
// Like a blob store,
// it keeps immutable byte sequences ("blobs")
// indexed by their SHA2-256 hash,
// called the blob's key.
// Identical content always has the same key,
// and a stored blob is never changed:
// "modifying" something means storing a new blob
// and getting back a new key.
//
// On top of that,
// the subpackages build the pieces of a Git-like history-preserving store:
//
//   - node: a Merkle tree mapping paths to content keys,
//     with structural three-way merge.
//   - commit: a DAG of commits over node-tree roots,
//     with common-ancestor search.
//   - merge: the generic three-way merge combinators the other packages share.
//   - view: an optimistic staging area over a path prefix
//     that records what it read,
//     so that stale reads can be detected when it is applied.
//   - branch: named heads kept in a TagStore,
//     advanced by fast-forward or by merging.
//
// Backends live under store/.
// Each implements Store,
// and most also implement TagStore,
// the small mutable part of the system:
// a set of names pointing to keys,
// changed only by atomic test-and-set.
package vs
