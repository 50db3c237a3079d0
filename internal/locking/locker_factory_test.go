package locking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLockerFactory_UnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := NewLockerFactory("redis", "", "", "")
	assert.EqualError(t, err, "unsupported lock type: redis")
}

func TestLockerFactory_GetLockName(t *testing.T) {
	t.Parallel()

	f, err := NewLockerFactory(LockTypeAzureBlob, "UseDevelopmentStorage=true", "locks",
		"sqlserver://sa:pw@ClinicDB.example.com:1433?database=clinic")
	require.NoError(t, err)
	assert.Equal(t, "clinicdb/patients.lock", f.GetLockName("patients"))

	f, err = NewLockerFactory(LockTypeAzureBlob, "UseDevelopmentStorage=true", "locks", "")
	require.NoError(t, err)
	assert.Equal(t, "patients.lock", f.GetLockName("patients"))
}
