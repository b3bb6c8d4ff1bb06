package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Lookup maps a field name to its diagnostic warning.
type Lookup map[string]string

// DiagnosticLookup flattens the two-level record → field → diagnostic
// metadata returned for warning-capable flows into one field-keyed table.
//
// Records are visited in key order, so when two records carry the same field
// name the later record wins deterministically. Shapes that are not a
// two-level object (the list-based metadata of other flows, malformed
// payloads) yield an empty lookup.
func DiagnosticLookup(raw json.RawMessage) Lookup {
	lookup := Lookup{}
	var records map[string]json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return lookup
	}
	if list, ok := records["mappings"]; ok && isArray(list) {
		return lookup
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(records[id], &fields); err != nil {
			continue
		}
		for name, data := range fields {
			var diag struct {
				ValidationWarning any `json:"validation_warning"`
			}
			if err := json.Unmarshal(data, &diag); err != nil {
				continue
			}
			if w, ok := diag.ValidationWarning.(string); ok && w != "" {
				lookup[name] = w
			}
		}
	}
	return lookup
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// Warnings matches every data row's first column against lookup and returns
// row index → warning. Rows whose key is absent carry no entry.
func Warnings(g Grid, lookup Lookup) map[int]string {
	out := map[int]string{}
	if len(lookup) == 0 {
		return out
	}
	for r := 1; r < len(g.rows); r++ {
		if len(g.rows[r]) == 0 {
			continue
		}
		if w, ok := lookup[g.rows[r][0]]; ok {
			out[r] = w
		}
	}
	return out
}

// Flag marks one cell that needs manual attention.
type Flag struct {
	Col    int    `json:"col"`
	Reason string `json:"reason"`
}

// Flags maps a row index to its flagged cell.
type Flags map[int]Flag

// DecodeFlags reads the server's {"<row>": {"col": n, "reason": "..."}} form.
// Entries with non-integer keys or undecodable bodies are dropped.
func DecodeFlags(raw json.RawMessage) Flags {
	out := Flags{}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return out
	}
	for key, body := range wire {
		row, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		var f Flag
		if err := json.Unmarshal(body, &f); err != nil {
			continue
		}
		out[row] = f
	}
	return out
}

// Clone returns an independent copy.
func (f Flags) Clone() Flags {
	out := make(Flags, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// At returns the flag for cell (r, c), if any.
func (f Flags) At(r, c int) (Flag, bool) {
	fl, ok := f[r]
	if !ok || fl.Col != c {
		return Flag{}, false
	}
	return fl, true
}

// Overlay is the derived annotation set for one render of the grid.
type Overlay struct {
	Warnings map[int]string
	Flags    Flags
}

// Empty reports whether nothing is annotated.
func (o Overlay) Empty() bool {
	return len(o.Warnings) == 0 && len(o.Flags) == 0
}

// Nestle grid columns used to describe a flagged row.
const (
	colX12Element  = 7
	colMappingRule = 9
)

// FlaggedRows renders one line per annotated row in row order.
func FlaggedRows(g Grid, o Overlay) []string {
	var lines []string

	rows := make([]int, 0, len(o.Warnings))
	for r := range o.Warnings {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	for _, r := range rows {
		field, _ := g.Cell(r, 0)
		lines = append(lines, fmt.Sprintf("Row %d: %s (%s)", r, field, o.Warnings[r]))
	}

	rows = rows[:0]
	for r := range o.Flags {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	for _, r := range rows {
		fl := o.Flags[r]
		if r >= g.Len() {
			lines = append(lines, fmt.Sprintf("Row %d: %s", r, fl.Reason))
			continue
		}
		elem, ok := g.Cell(r, colX12Element)
		if !ok {
			elem = "?"
		}
		rule, ok := g.Cell(r, colMappingRule)
		if !ok {
			rule = "?"
		}
		lines = append(lines, fmt.Sprintf("Row %d: %s — Mapping Rule: %q — Flag: %s", r, elem, rule, fl.Reason))
	}
	return lines
}
