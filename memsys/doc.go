// Package memsys implements a hierarchical memory-allocation tree: a forest
// of Pool nodes, each carrying a pluggable allocation policy (arena/tracking
// or free-per-allocation/non-tracking), a per-node cleanup registry, and
// cascading reset/destroy semantics.
//
// A Pool is constructed as a child of another Pool (or as a root), and
// inherits nothing from its parent except position in the tree: its own
// Policy governs how it allocates and reclaims memory. Pools whose Policy
// supplies Reset are "tracking" — individual Free calls are no-ops, and the
// whole subtree is reclaimed in bulk by Reset or Destroy. Pools without
// Reset but with Free are "non-tracking" — callers must Free what they
// Malloc, same as a conventional allocator.
//
// See SPEC_FULL.md and DESIGN.md at the repository root for the full
// specification this package implements and its grounding in the corpus.
package memsys
