// Package query derives the statements a watcher runs from its base query:
// a max-identity query for bootstrap, an incremental fetch above the watermark,
// and the full fetch used for update and delete detection.
//
// The rewriting is textual. It understands keywords at the top level of the
// statement (outside parentheses and string literals) and nothing more, so a
// malformed base query produces a malformed statement, and the error surfaces when
// the store executes it.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// MaxIDColumn is the alias of the single column returned by the max-identity query.
const MaxIDColumn = "max_id"

var (
	fromRe    = regexp.MustCompile(`(?i)\bFROM\s+([\w.\[\]"]+)`)
	fromKwRe  = regexp.MustCompile(`(?i)\bFROM\b`)
	joinRe    = regexp.MustCompile(`(?i)\bJOIN\b`)
	setOpRe   = regexp.MustCompile(`(?i)\b(UNION|INTERSECT|EXCEPT)\b`)
	whereRe   = regexp.MustCompile(`(?i)\bWHERE\b`)
	orderByRe = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)
	clauseRe  = regexp.MustCompile(`(?i)\b(GROUP\s+BY|HAVING|ORDER\s+BY)\b`)
)

// MaxIdentityQuery returns a statement yielding the highest identity of the watched
// rows in a column named max_id. idField is the identity's name in the result set
// and idColumn the expression the base query reads it from. A query over a single
// table with an unqualified idColumn is answered from the table directly; anything
// else is wrapped as a derived table and aggregated by idField.
func MaxIdentityQuery(base, idField, idColumn string) string {
	base = trimStatement(base)
	if idColumn == "" {
		idColumn = idField
	}
	if table, ok := singleTable(base); ok && !qualified(idColumn) {
		return fmt.Sprintf("SELECT MAX(%s) AS %s FROM %s", idColumn, MaxIDColumn, table)
	}

	inner := base
	if loc := lastTopLevel(base, orderByRe); loc != nil {
		// derived tables may not carry ORDER BY on SQL Server
		inner = strings.TrimSpace(base[:loc[0]])
	}
	return fmt.Sprintf("SELECT MAX(%s) AS %s FROM (\n%s\n) AS subquery", idField, MaxIDColumn, inner)
}

// qualified reports whether a column expression names a table or alias, which
// is not visible outside the query that declares it.
func qualified(column string) bool {
	return strings.ContainsAny(column, ".(")
}

// IncrementalQuery restricts base to rows whose identity is above watermark.
// An existing WHERE condition is kept and combined with AND, otherwise the predicate
// goes in front of ORDER BY, otherwise at the end.
func IncrementalQuery(base, idColumn string, watermark cdc.Identity) string {
	base = trimStatement(base)
	pred := fmt.Sprintf("%s > %s", idColumn, watermark)

	if where := firstTopLevel(base, whereRe); where != nil {
		condStart := where[1]
		condEnd := len(base)
		if next := firstTopLevelAfter(base, clauseRe, condStart); next != nil {
			condEnd = next[0]
		}
		cond := strings.TrimSpace(base[condStart:condEnd])
		closing := ")"
		if hasLineComment(cond) {
			closing = "\n)"
		}
		out := base[:where[0]] + "WHERE " + pred + " AND (" + cond + closing
		if condEnd < len(base) {
			out += " " + base[condEnd:]
		}
		return out
	}

	if order := firstTopLevel(base, orderByRe); order != nil {
		return base[:order[0]] + "WHERE " + pred + " " + base[order[0]:]
	}

	sep := " "
	if hasLineComment(lastLine(base)) {
		sep = "\n"
	}
	return base + sep + "WHERE " + pred
}

// singleTable returns the table of a query that reads exactly one table.
func singleTable(base string) (string, bool) {
	if len(fromKwRe.FindAllStringIndex(base, -1)) != 1 {
		return "", false
	}
	if joinRe.MatchString(base) || setOpRe.MatchString(base) {
		return "", false
	}
	m := fromRe.FindStringSubmatchIndex(base)
	if m == nil || depthAt(base, m[0]) != 0 {
		return "", false
	}
	// FROM a, b is a join too
	if rest := strings.TrimSpace(base[m[1]:]); strings.HasPrefix(rest, ",") {
		return "", false
	}
	return base[m[2]:m[3]], true
}

func trimStatement(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "; \t\r\n")
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func hasLineComment(s string) bool {
	return strings.Contains(s, "--")
}

func firstTopLevel(s string, re *regexp.Regexp) []int {
	return firstTopLevelAfter(s, re, 0)
}

func firstTopLevelAfter(s string, re *regexp.Regexp, from int) []int {
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if loc[0] >= from && depthAt(s, loc[0]) == 0 {
			return loc
		}
	}
	return nil
}

func lastTopLevel(s string, re *regexp.Regexp) []int {
	var last []int
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if depthAt(s, loc[0]) == 0 {
			last = loc
		}
	}
	return last
}

// depthAt returns the parenthesis depth at byte offset pos. Offsets inside a
// quoted literal or a line comment report -1 so they never count as top level.
func depthAt(s string, pos int) int {
	depth := 0
	inQuote := false
	inComment := false
	for i := 0; i < pos && i < len(s); i++ {
		c := s[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
			}
		case inQuote:
			if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			inQuote = true
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			inComment = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		}
	}
	if inQuote || inComment {
		return -1
	}
	return depth
}
