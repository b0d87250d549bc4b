// Package comm provides the collective-communication capability used by
// the box index and the indexed equivalence sets.
//
// Every cross-rank primitive is a synchronous collective: all ranks of a
// group must call it the same number of times, in the same order, with
// consistent parameters. The package does not detect mismatched calls;
// that discipline belongs to the orchestration layer. Context
// cancellation is the only way out of a stuck collective.
//
// Channel is satisfied by the in-process LocalGroup (which doubles as the
// single-rank shim) and by the TCP binding in comm/tcp. Exchanger layers
// all-to-all-by-destination routing on top of Channel, including reverse
// exchanges along the same routes.
package comm
