// Package joinset implements the indexed equivalence sets used to merge
// coincident mesh entities across ranks.
//
// The central type is IndexedSet, a CSR-encoded multimap from global ids
// to lists of global ids. Local candidates are accumulated in EquivSet,
// grouped into IndexedSets, then synchronized with BlockSync/BlockUpdate
// until the "same physical entity" relation reaches its transitive
// closure, without ever materializing a global graph on one rank.
//
// Operations on IndexedSet are pure: they leave their input untouched
// and return a fresh instance, which keeps the CSR invariants directly
// testable.
package joinset
