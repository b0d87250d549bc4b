// Package boxes implements the distributed index of axis-aligned
// bounding boxes used to pair up candidate mesh entities.
//
// A Set holds the local shard of a global box collection together with
// collectively reduced global extents. A Distrib is a weight-balanced
// partition of the Morton code space over the ranks of a group;
// redistributing a Set against it moves every box to its owning rank
// exactly once, with bit-identical extents.
package boxes
