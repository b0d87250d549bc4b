// Package tcp binds a comm.Channel to a full mesh of TCP connections,
// letting the collective operations run across processes or hosts.
//
// Every rank knows the full address list and its own position in it.
// Connect establishes the mesh: a rank dials every lower rank and
// accepts from every higher one, so each pair shares exactly one duplex
// connection. Collectives are lock-step, one frame per peer per step;
// frames carry a step counter so a desynchronized group fails loudly
// instead of delivering stale payloads.
//
// Payloads can be LZ4- or ZSTD-compressed per frame, which pays off for
// the highly regular integer arrays the collectives move around.
package tcp
