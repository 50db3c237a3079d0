package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Planner produces the three statements a watcher runs.
type Planner interface {
	// MaxIdentity returns the bootstrap query; its single column is named max_id.
	MaxIdentity() (cdc.Statement, error)

	// Incremental returns the fetch of rows above the watermark. Without a
	// watermark every row is new.
	Incremental(watermark cdc.Identity, hasWatermark bool) (cdc.Statement, error)

	// Full returns the complete watched row set.
	Full() (cdc.Statement, error)
}

// TextPlanner rewrites a free-form base query.
type TextPlanner struct {
	Base string

	// IDField names the identity in the result set; IDColumn is the expression
	// the base query reads it from and defaults to IDField.
	IDField  string
	IDColumn string
}

func (p TextPlanner) MaxIdentity() (cdc.Statement, error) {
	return cdc.Statement{SQL: MaxIdentityQuery(p.Base, p.IDField, p.IDColumn)}, nil
}

func (p TextPlanner) Incremental(watermark cdc.Identity, hasWatermark bool) (cdc.Statement, error) {
	if !hasWatermark {
		return p.Full()
	}
	return cdc.Statement{SQL: IncrementalQuery(p.Base, p.column(), watermark)}, nil
}

func (p TextPlanner) column() string {
	if p.IDColumn != "" {
		return p.IDColumn
	}
	return p.IDField
}

func (p TextPlanner) Full() (cdc.Statement, error) {
	return cdc.Statement{SQL: trimStatement(p.Base)}, nil
}

// TablePlanner builds statements from an explicit table, column list and filter,
// with the watermark bound as a parameter rather than spliced into the text.
type TablePlanner struct {
	Table    string
	Columns  []string
	Where    string
	IDColumn string

	// Placeholder defaults to sq.Question.
	Placeholder sq.PlaceholderFormat
}

// PlaceholderFor returns the bind-parameter style of a database/sql driver name.
func PlaceholderFor(driver string) sq.PlaceholderFormat {
	switch driver {
	case "sqlserver", "mssql":
		return sq.AtP
	case "postgres", "pgx":
		return sq.Dollar
	default:
		return sq.Question
	}
}

func (p TablePlanner) MaxIdentity() (cdc.Statement, error) {
	b := sq.Select(fmt.Sprintf("MAX(%s) AS %s", p.IDColumn, MaxIDColumn)).From(p.Table)
	if p.Where != "" {
		b = b.Where(p.Where)
	}
	return p.build(b)
}

func (p TablePlanner) Incremental(watermark cdc.Identity, hasWatermark bool) (cdc.Statement, error) {
	b := p.selectRows()
	if hasWatermark {
		b = b.Where(sq.Gt{p.IDColumn: int64(watermark)})
	}
	return p.build(b.OrderBy(p.IDColumn))
}

func (p TablePlanner) Full() (cdc.Statement, error) {
	return p.build(p.selectRows().OrderBy(p.IDColumn))
}

func (p TablePlanner) selectRows() sq.SelectBuilder {
	cols := p.Columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	b := sq.Select(cols...).From(p.Table)
	if p.Where != "" {
		b = b.Where(p.Where)
	}
	return b
}

func (p TablePlanner) build(b sq.SelectBuilder) (cdc.Statement, error) {
	format := p.Placeholder
	if format == nil {
		format = sq.Question
	}
	text, args, err := b.PlaceholderFormat(format).ToSql()
	if err != nil {
		return cdc.Statement{}, fmt.Errorf("failed to build statement for %s: %w", p.Table, err)
	}
	return cdc.Statement{SQL: text, Args: args}, nil
}
