package cdc

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	t.Parallel()

	valid := []struct {
		in   any
		want Identity
	}{
		{int64(42), 42},
		{int32(7), 7},
		{uint8(3), 3},
		{float64(12), 12},
		{"99", 99},
		{" 15 ", 15},
		{"42.00", 42},
		{[]byte("8"), 8},
		{Identity(5), 5},
	}
	for _, tc := range valid {
		got, err := ParseIdentity(tc.in)
		require.NoError(t, err, "%#v", tc.in)
		assert.Equal(t, tc.want, got)
	}

	invalid := []any{nil, 1.5, math.NaN(), "abc", "4.2", uint64(math.MaxUint64), true}
	for _, in := range invalid {
		_, err := ParseIdentity(in)
		assert.Error(t, err, "%#v", in)
	}
}

func TestIdentityOf(t *testing.T) {
	t.Parallel()

	id, err := IdentityOf(Row{"OrderID": int64(10)}, "OrderID")
	require.NoError(t, err)
	assert.Equal(t, Identity(10), id)
	assert.Equal(t, "10", id.String())

	_, err = IdentityOf(Row{"id": 1}, "OrderID")
	assert.Error(t, err)
}

func TestChangeSet_Empty(t *testing.T) {
	t.Parallel()

	var nilSet *ChangeSet
	assert.True(t, nilSet.Empty())
	assert.True(t, (&ChangeSet{Skipped: 3}).Empty())
	assert.False(t, (&ChangeSet{Deleted: []Identity{1}}).Empty())
}

func TestSnapshot_Clone(t *testing.T) {
	t.Parallel()

	s := Snapshot{1: "a"}
	c := s.Clone()
	c[2] = "b"
	assert.Len(t, s, 1)
}

func TestMultiHandlers(t *testing.T) {
	t.Parallel()

	var calls []string
	boom := errors.New("boom")
	h := MultiHandlers(
		Handlers{
			OnNew: func(context.Context, []Row) error {
				calls = append(calls, "first")
				return boom
			},
		},
		Handlers{
			OnNew: func(context.Context, []Row) error {
				calls = append(calls, "second")
				return nil
			},
		},
	)

	assert.Nil(t, h.OnUpdate)
	assert.Nil(t, h.OnDelete)
	require.NotNil(t, h.OnNew)

	err := h.OnNew(context.Background(), []Row{{"id": 1}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, calls)
}
