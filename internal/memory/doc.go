// Package memory holds the two shared retrieval substrates: the
// append-only conversation log and the namespaced vector store.
//
// Both are keyed by Namespace and tolerate concurrent writers because
// writes are monotonically ordered and never overwritten. Reads degrade
// gracefully (empty results) so generation stays available when a
// backing store misbehaves; writes that risk data loss report the fault.
package memory
