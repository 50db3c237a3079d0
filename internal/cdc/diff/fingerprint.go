package diff

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// DefaultVolatileFields are timestamp columns that change on every write and would
// otherwise make every row look updated.
var DefaultVolatileFields = []string{
	"CreatedAt",
	"UpdatedAt",
	"created_at",
	"updated_at",
	"LastModified",
	"last_modified",
}

// Fingerprint computes a stable digest of row, excluding idField and every name in ignore.
// Key order of the input never affects the result.
func Fingerprint(row cdc.Row, idField string, ignore []string) cdc.Fingerprint {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k == idField || contains(ignore, k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(encodeValue(row[k]))
	}
	buf.WriteByte('}')

	sum := blake3.Sum256(buf.Bytes())
	return cdc.Fingerprint(hex.EncodeToString(sum[:]))
}

func encodeValue(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// NaN, channels and the like; still deterministic
		return []byte(fmt.Sprintf("%q", fmt.Sprintf("%v", v)))
	}
	return b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
