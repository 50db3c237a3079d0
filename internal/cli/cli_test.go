package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katasec/dstream-rowwatch/internal/config"
)

// Test plan for CLI commands:
// 1. plan prints bootstrap and incremental statements for text queries
// 2. plan prints bound arguments for table watchers and a full statement when tracking
// 3. version prints build information
// 4. Commands report unreadable config files

const planConfig = `
database {
  driver            = "sqlserver"
  connection_string = "sqlserver://sa:pw@db:1433"
}

watcher "patients" {
  query    = "SELECT * FROM Clinic_PatientsTelNumbers ORDER BY PatientID ASC"
  id_field = "PatientID"
}

watcher "orders" {
  table         = "dbo.Orders"
  id_field      = "OrderID"
  track_deletes = true
}
`

func TestWritePlan(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse("plan.hcl", []byte(planConfig))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writePlan(&buf, cfg, 41, true))
	out := buf.String()

	assert.Contains(t, out, `watcher "patients" (id PatientID, every 5s, updates=false, deletes=false)`)
	assert.Contains(t, out, "bootstrap:   SELECT MAX(PatientID) AS max_id FROM Clinic_PatientsTelNumbers")
	assert.Contains(t, out, "incremental: SELECT * FROM Clinic_PatientsTelNumbers WHERE PatientID > 41 ORDER BY PatientID ASC")

	assert.Contains(t, out, "incremental: SELECT * FROM dbo.Orders WHERE OrderID > @p1 ORDER BY OrderID")
	assert.Contains(t, out, "args:        [41]")
	assert.Contains(t, out, "full:        SELECT * FROM dbo.Orders ORDER BY OrderID")
}

func TestWritePlan_NoWatermark(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse("plan.hcl", []byte(planConfig))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writePlan(&buf, cfg, 0, false))
	assert.Contains(t, buf.String(), "incremental: SELECT * FROM Clinic_PatientsTelNumbers ORDER BY PatientID ASC")
}

func TestCommands(t *testing.T) {
	// Note: Cannot use t.Parallel() because commands share package-level flags

	path := filepath.Join(t.TempDir(), "rowwatch.hcl")
	require.NoError(t, os.WriteFile(path, []byte(planConfig), 0o600))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"plan", "--config", path, "--watermark", "7"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "PatientID > 7")

	buf.Reset()
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "rowwatch dev")

	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"plan", "--config", filepath.Join(t.TempDir(), "missing.hcl")})
	assert.ErrorContains(t, rootCmd.Execute(), "failed to read config")
}
