package query

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextPlanner(t *testing.T) {
	t.Parallel()

	p := TextPlanner{Base: "SELECT * FROM T ORDER BY id;", IDColumn: "id"}

	stmt, err := p.Incremental(0, false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM T ORDER BY id", stmt.SQL)

	stmt, err = p.Incremental(5, true)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM T WHERE id > 5 ORDER BY id", stmt.SQL)
	assert.Empty(t, stmt.Args)

	stmt, err = p.MaxIdentity()
	require.NoError(t, err)
	assert.Equal(t, "SELECT MAX(id) AS max_id FROM T", stmt.SQL)
}

func TestTextPlanner_QualifiedIDColumn(t *testing.T) {
	t.Parallel()

	p := TextPlanner{
		Base:     "SELECT p.PatientID, p.Name FROM Patients p JOIN Phones t ON t.PatientID = p.PatientID",
		IDField:  "PatientID",
		IDColumn: "p.PatientID",
	}

	stmt, err := p.MaxIdentity()
	require.NoError(t, err)
	assert.Equal(t, "SELECT MAX(PatientID) AS max_id FROM (\n"+p.Base+"\n) AS subquery", stmt.SQL)

	stmt, err = p.Incremental(7, true)
	require.NoError(t, err)
	assert.Equal(t, p.Base+" WHERE p.PatientID > 7", stmt.SQL)
}

func TestTablePlanner(t *testing.T) {
	t.Parallel()

	p := TablePlanner{
		Table:       "dbo.Orders",
		Columns:     []string{"OrderID", "Status"},
		Where:       "Status <> 'draft'",
		IDColumn:    "OrderID",
		Placeholder: PlaceholderFor("sqlserver"),
	}

	stmt, err := p.MaxIdentity()
	require.NoError(t, err)
	assert.Equal(t, "SELECT MAX(OrderID) AS max_id FROM dbo.Orders WHERE Status <> 'draft'", stmt.SQL)

	stmt, err = p.Incremental(41, true)
	require.NoError(t, err)
	assert.Equal(t, "SELECT OrderID, Status FROM dbo.Orders WHERE Status <> 'draft' AND OrderID > @p1 ORDER BY OrderID", stmt.SQL)
	assert.Equal(t, []any{int64(41)}, stmt.Args)

	stmt, err = p.Full()
	require.NoError(t, err)
	assert.Equal(t, "SELECT OrderID, Status FROM dbo.Orders WHERE Status <> 'draft' ORDER BY OrderID", stmt.SQL)

	stmt, err = TablePlanner{Table: "T", IDColumn: "id"}.Incremental(3, true)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM T WHERE id > ? ORDER BY id", stmt.SQL)
}

func TestPlaceholderFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sq.AtP, PlaceholderFor("sqlserver"))
	assert.Equal(t, sq.Dollar, PlaceholderFor("pgx"))
	assert.Equal(t, sq.Question, PlaceholderFor("sqlite3"))
}
