package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Test Plan for change classification:
// - PartitionNew reports every row and advances the watermark to the max identity
// - PartitionNew skips rows without a usable identity
// - PartitionFull reports changed fingerprints as updates only when tracked
// - PartitionFull reports vanished identities as sorted deletes only when tracked
// - The returned snapshot reflects exactly the fetched rows
// - MergeSnapshot adds rows in place

func TestPartitionNew(t *testing.T) {
	t.Parallel()

	rows := []cdc.Row{
		{"id": int64(4), "name": "d"},
		{"id": int64(9), "name": "i"},
		{"id": nil, "name": "null"},
		{"id": "7", "name": "g"},
		{"name": "missing"},
	}

	res := PartitionNew(rows, "id", 3, true)
	assert.Len(t, res.Rows, 3)
	assert.Equal(t, 2, res.Skipped)
	assert.True(t, res.HasWatermark)
	assert.Equal(t, cdc.Identity(9), res.Watermark)
}

func TestPartitionNew_Empty(t *testing.T) {
	t.Parallel()

	res := PartitionNew(nil, "id", 5, true)
	assert.Empty(t, res.Rows)
	assert.Equal(t, cdc.Identity(5), res.Watermark)

	res = PartitionNew(nil, "id", 0, false)
	assert.False(t, res.HasWatermark)

	res = PartitionNew([]cdc.Row{{"id": 1}}, "id", 0, false)
	assert.True(t, res.HasWatermark)
	assert.Equal(t, cdc.Identity(1), res.Watermark)
}

func TestPartitionFull(t *testing.T) {
	t.Parallel()

	before := []cdc.Row{
		{"id": 1, "name": "ada"},
		{"id": 2, "name": "bob"},
		{"id": 3, "name": "cyd"},
	}
	prev, skipped := BuildSnapshot(before, "id", nil)
	require.Zero(t, skipped)
	require.Len(t, prev, 3)

	after := []cdc.Row{
		{"id": 2, "name": "bobby"},
		{"id": 4, "name": "dee"},
	}

	res := PartitionFull(prev, after, FullOptions{IDField: "id", TrackUpdates: true, TrackDeletes: true})
	require.Len(t, res.Updated, 1)
	assert.Equal(t, "bobby", res.Updated[0]["name"])
	assert.Equal(t, []cdc.Identity{1, 3}, res.Deleted)
	assert.Len(t, res.Snapshot, 2)
	assert.Contains(t, res.Snapshot, cdc.Identity(4))

	// untracked classes are not reported but the snapshot still moves
	res = PartitionFull(prev, after, FullOptions{IDField: "id"})
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Deleted)
	assert.Len(t, res.Snapshot, 2)
}

func TestPartitionFull_UnchangedRows(t *testing.T) {
	t.Parallel()

	rows := []cdc.Row{{"id": 1, "name": "ada", "updated_at": "t0"}}
	prev, _ := BuildSnapshot(rows, "id", DefaultVolatileFields)

	touched := []cdc.Row{{"id": 1, "name": "ada", "updated_at": "t9"}, {"name": "no id"}}
	res := PartitionFull(prev, touched, FullOptions{
		IDField:      "id",
		Ignore:       DefaultVolatileFields,
		TrackUpdates: true,
		TrackDeletes: true,
	})
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, 1, res.Skipped)
}

func TestMergeSnapshot(t *testing.T) {
	t.Parallel()

	snap := cdc.Snapshot{}
	MergeSnapshot(snap, []cdc.Row{{"id": 5, "v": 1}, {"v": 2}}, "id", nil)
	assert.Len(t, snap, 1)
	assert.Equal(t, Fingerprint(cdc.Row{"id": 5, "v": 1}, "id", nil), snap[5])
}
