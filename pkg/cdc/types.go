package cdc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ChangeType represents the type of change detected in a table
type ChangeType string

const (
	// Insert represents a new row being added
	Insert ChangeType = "insert"
	// Update represents a row being modified
	Update ChangeType = "update"
	// Delete represents a row being removed
	Delete ChangeType = "delete"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Identity is the ordered key of a row, taken from the configured identity field.
type Identity int64

// String renders the identity as a base-10 literal, safe to embed in SQL text.
func (id Identity) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Fingerprint is a content digest of a row with its identity and volatile fields removed.
type Fingerprint string

// Snapshot is the last known fingerprint of every watched row.
type Snapshot map[Identity]Fingerprint

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ChangeSet is the result of one poll cycle. It is never persisted.
type ChangeSet struct {
	New     []Row
	Updated []Row
	Deleted []Identity

	// Skipped counts rows that carried no usable identity.
	Skipped int

	// HandlerErrors holds the failures of handlers invoked during the cycle.
	HandlerErrors []error
}

// Empty reports whether the cycle found nothing to report.
func (c *ChangeSet) Empty() bool {
	return c == nil || (len(c.New) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0)
}

// ChangeEvent represents a single row-level change emitted downstream
type ChangeEvent struct {
	ID         string     `json:"id"`
	Watcher    string     `json:"watcher"`
	ChangeType ChangeType `json:"change_type"`
	Identity   Identity   `json:"identity"`
	Data       Row        `json:"data,omitempty"`
	Timestamp  string     `json:"timestamp"`
}

// Statement is a SQL text plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// ParseIdentity converts a scanned column value into an Identity.
// Integers of any width, integral floats and decimal text are accepted.
func ParseIdentity(v any) (Identity, error) {
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("identity is null")
	case int64:
		return Identity(n), nil
	case int:
		return Identity(n), nil
	case int32:
		return Identity(n), nil
	case int16:
		return Identity(n), nil
	case int8:
		return Identity(n), nil
	case uint8:
		return Identity(n), nil
	case uint16:
		return Identity(n), nil
	case uint32:
		return Identity(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("identity %d overflows int64", n)
		}
		return Identity(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("identity %d overflows int64", n)
		}
		return Identity(n), nil
	case float64:
		return identityFromFloat(n)
	case float32:
		return identityFromFloat(float64(n))
	case string:
		return identityFromText(n)
	case []byte:
		return identityFromText(string(n))
	case Identity:
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported identity type %T", v)
	}
}

func identityFromFloat(f float64) (Identity, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("identity %v is not an integer", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("identity %v overflows int64", f)
	}
	return Identity(f), nil
}

func identityFromText(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	// DECIMAL(18,0) columns come back as "42" but NUMERIC(10,2) may read "42.00"
	if i := strings.IndexByte(s, '.'); i >= 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("identity %q is not an integer: %w", s, err)
	}
	return Identity(n), nil
}

// IdentityOf extracts and parses the identity field of a row.
func IdentityOf(row Row, idField string) (Identity, error) {
	v, ok := row[idField]
	if !ok {
		return 0, fmt.Errorf("row has no %q field", idField)
	}
	return ParseIdentity(v)
}
