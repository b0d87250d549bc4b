// Package testutil provides testing utilities for meshjoin.
//
// This package is intended for use in tests and benchmarks only.
// It provides a deterministic random source for generating box layouts
// and a driver running collective operations over an in-process group.
//
// # Random Box Generation
//
//	rng := testutil.NewRNG(seed)
//	gnums, extents := rng.UniformBoxes(100, 3, 1, 0.05)
//
// # Multi-Rank Collectives
//
//	testutil.RunGroup(t, 4, func(ctx context.Context, ch comm.Channel) error {
//	    // runs once per rank, concurrently
//	    return nil
//	})
package testutil
