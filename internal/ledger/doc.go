// Package ledger implements the serialized commit pipeline over the graph
// store: the sequencer that appends ledger entries under a process-wide
// lock, the advisory no-op filter that suppresses redundant commits, and the
// post-commit conflict detector.
//
// The sequencer is the sole mutation point of the graph's mutable
// projection. Everything before it (classification, parsing, no-op checks)
// and after it (conflict detection, notification building) runs
// unsynchronized.
package ledger
