// Package meshjoin provides the distributed geometric search and
// equivalence-resolution primitives used when joining non-conforming
// mesh surfaces across the ranks of a parallel computation.
//
// The package is built around two subsystems:
//
//   - A distributed bounding-box index: every rank contributes its local
//     axis-aligned boxes, the collection is balanced over a Morton
//     space-filling curve, and each box migrates to the rank owning its
//     curve cell. Intersection tests then stay rank-local.
//
//   - Indexed equivalence sets: CSR-shaped multimaps from global ids to
//     related global ids, with collective block synchronization so every
//     rank converges on the same canonical relations.
//
// # Quick Start
//
//	ctx := context.Background()
//	j, err := meshjoin.New(ch) // ch is a comm.Channel, one per rank
//
//	// Balance and redistribute local boxes.
//	idx, _ := j.BuildBoxIndex(ctx, 3, gnums, extents)
//
//	// Collapse vertex equivalences into merge classes.
//	res, _ := j.MergeVertices(ctx, vertexGnums, equivPairs)
//
// All Joiner methods that take a context are collective: every rank of
// the group must call them in the same order with compatible arguments.
// On a single-rank group they degrade to purely local computation.
package meshjoin
