package diff

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Test Plan for Fingerprint:
// - Same content yields the same digest regardless of map construction order
// - Identity and ignored fields never affect the digest
// - Any other field change changes the digest
// - Values JSON cannot encode still produce a stable digest

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	a := cdc.Row{"id": 1, "name": "ada", "age": 36}
	b := cdc.Row{"age": 36, "name": "ada", "id": 1}

	assert.Equal(t, Fingerprint(a, "id", nil), Fingerprint(b, "id", nil))
	assert.Len(t, string(Fingerprint(a, "id", nil)), 64)
}

func TestFingerprint_ExcludesIdentityAndIgnored(t *testing.T) {
	t.Parallel()

	base := cdc.Row{"id": 1, "name": "ada", "updated_at": "t0"}
	moved := cdc.Row{"id": 2, "name": "ada", "updated_at": "t1"}

	assert.Equal(t,
		Fingerprint(base, "id", DefaultVolatileFields),
		Fingerprint(moved, "id", DefaultVolatileFields))

	// with an explicit list the default names count again
	assert.NotEqual(t,
		Fingerprint(base, "id", []string{}),
		Fingerprint(moved, "id", []string{}))
	assert.Equal(t,
		Fingerprint(cdc.Row{"id": 1, "name": "ada", "etag": "x"}, "id", []string{"etag"}),
		Fingerprint(cdc.Row{"id": 1, "name": "ada", "etag": "y"}, "id", []string{"etag"}))
}

func TestFingerprint_DetectsContentChange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b cdc.Row
	}{
		{"value", cdc.Row{"name": "ada"}, cdc.Row{"name": "bob"}},
		{"type", cdc.Row{"n": 1}, cdc.Row{"n": "1"}},
		{"null", cdc.Row{"n": nil}, cdc.Row{"n": ""}},
		{"added column", cdc.Row{"a": 1}, cdc.Row{"a": 1, "b": 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, Fingerprint(tc.a, "id", nil), Fingerprint(tc.b, "id", nil))
		})
	}
}

func TestFingerprint_UnencodableValue(t *testing.T) {
	t.Parallel()

	row := cdc.Row{"score": math.NaN()}
	assert.Equal(t, Fingerprint(row, "id", nil), Fingerprint(row, "id", nil))
	assert.NotEqual(t, Fingerprint(row, "id", nil), Fingerprint(cdc.Row{"score": 1.0}, "id", nil))
}
