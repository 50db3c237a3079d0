package utils

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractServerNameFromConnectionString(t *testing.T) {
	t.Parallel()

	hostname, err := os.Hostname()
	require.NoError(t, err)
	local := strings.ToLower(hostname)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"url", "sqlserver://sa:pw@DB01.corp.example.com:1433?database=clinic", "db01"},
		{"key values", "server=sqlprod.database.windows.net,1433;user id=sa;password=x", "sqlprod"},
		{"data source with instance", `Data Source=tcp:Reports\SQLEXPRESS;Initial Catalog=x`, "reports"},
		{"localhost url", "sqlserver://sa:pw@localhost:1433", local},
		{"ip address", "server=10.0.0.4;database=x", local},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractServerNameFromConnectionString(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = ExtractServerNameFromConnectionString("file:test.db?mode=memory")
	assert.Error(t, err)
}

func TestIsIPAddress(t *testing.T) {
	t.Parallel()

	assert.True(t, isIPAddress("127.0.0.1"))
	assert.True(t, isIPAddress("127"))
	assert.True(t, isIPAddress("10.1"))
	assert.False(t, isIPAddress("db01"))
	assert.False(t, isIPAddress("300"))
}
