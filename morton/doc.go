// Package morton implements space-filling-curve codes used to partition
// axis-aligned boxes across ranks.
//
// A code identifies one cell of a 2^level per-axis grid over normalized
// [0,1] coordinates. Codes carry their refinement level so that a single
// oversized cell can be split into finer cells during load balancing
// instead of monopolizing a rank.
package morton
