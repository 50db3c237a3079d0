// Package diff classifies freshly fetched rows against what a watcher saw before.
// Everything here is pure: no I/O, no shared state.
package diff

import (
	"sort"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// NewResult is the outcome of PartitionNew.
type NewResult struct {
	Rows         []cdc.Row
	Watermark    cdc.Identity
	HasWatermark bool
	Skipped      int
}

// PartitionNew treats every row of an incremental fetch as new, since the fetch is
// already filtered to identities above the watermark, and returns the advanced
// watermark. Rows without a usable identity are dropped and counted.
func PartitionNew(rows []cdc.Row, idField string, watermark cdc.Identity, hasWatermark bool) NewResult {
	res := NewResult{Watermark: watermark, HasWatermark: hasWatermark}
	if len(rows) == 0 {
		return res
	}

	res.Rows = make([]cdc.Row, 0, len(rows))
	for _, row := range rows {
		id, err := cdc.IdentityOf(row, idField)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, row)
		if !res.HasWatermark || id > res.Watermark {
			res.Watermark = id
			res.HasWatermark = true
		}
	}
	return res
}

// FullResult is the outcome of PartitionFull.
type FullResult struct {
	Updated  []cdc.Row
	Deleted  []cdc.Identity
	Snapshot cdc.Snapshot
	Skipped  int
}

// FullOptions selects what PartitionFull reports.
type FullOptions struct {
	IDField      string
	Ignore       []string
	TrackUpdates bool
	TrackDeletes bool
}

// PartitionFull compares a complete fetch of the watched query with the previous
// snapshot. The returned snapshot is built only from rows, so an identity missing
// from rows is gone from the next snapshot as well.
func PartitionFull(prev cdc.Snapshot, rows []cdc.Row, opts FullOptions) FullResult {
	res := FullResult{Snapshot: make(cdc.Snapshot, len(rows))}

	for _, row := range rows {
		id, err := cdc.IdentityOf(row, opts.IDField)
		if err != nil {
			res.Skipped++
			continue
		}
		fp := Fingerprint(row, opts.IDField, opts.Ignore)
		res.Snapshot[id] = fp

		if !opts.TrackUpdates {
			continue
		}
		if old, known := prev[id]; known && old != fp {
			res.Updated = append(res.Updated, row)
		}
	}

	if opts.TrackDeletes {
		for id := range prev {
			if _, still := res.Snapshot[id]; !still {
				res.Deleted = append(res.Deleted, id)
			}
		}
		sort.Slice(res.Deleted, func(i, j int) bool { return res.Deleted[i] < res.Deleted[j] })
	}

	return res
}

// BuildSnapshot fingerprints rows with no previous state to compare against.
func BuildSnapshot(rows []cdc.Row, idField string, ignore []string) (cdc.Snapshot, int) {
	res := PartitionFull(nil, rows, FullOptions{IDField: idField, Ignore: ignore})
	return res.Snapshot, res.Skipped
}

// MergeSnapshot adds or replaces the fingerprints of rows in snap, in place.
func MergeSnapshot(snap cdc.Snapshot, rows []cdc.Row, idField string, ignore []string) {
	for _, row := range rows {
		id, err := cdc.IdentityOf(row, idField)
		if err != nil {
			continue
		}
		snap[id] = Fingerprint(row, idField, ignore)
	}
}
