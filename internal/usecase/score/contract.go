package score

import "github.com/imgdex/imgdex/internal/column"

// SnapshotSource yields the live column snapshot to score against.
type SnapshotSource interface {
	Current() *column.Snapshot
}
