// Package flow holds the static registry of mapping workflows.
//
// Every flow kind fixes which documents must be uploaded, which grid columns
// the reviewer may edit and which overlay the grid carries. The registry is
// read-only; nothing here depends on session or grid state.
package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a mapping workflow. Its value is the {flow} path segment
// used by the mapping service.
type Kind string

const (
	Kind850    Kind = "850"
	Kind856    Kind = "856"
	KindNestle Kind = "nestle"
)

// ErrUnknownFlow is returned when a flow identifier is not registered.
var ErrUnknownFlow = errors.New("unknown flow kind")

// Slot names a required document. Its value is the multipart field name
// expected by the upload endpoint.
type Slot string

const (
	SlotEDI Slot = "edi_file"
	SlotPDF Slot = "pdf_file"
)

// Overlay selects the annotation rule a flow applies on top of its grid.
type Overlay int

const (
	OverlayNone Overlay = iota
	// OverlayWarnings derives per-row warnings from mapping diagnostics.
	OverlayWarnings
	// OverlayFlags uses per-cell flags supplied by the server.
	OverlayFlags
)

func (o Overlay) String() string {
	switch o {
	case OverlayWarnings:
		return "warnings"
	case OverlayFlags:
		return "flags"
	default:
		return "none"
	}
}

// Policy is the registry entry for one flow kind.
type Policy struct {
	Kind     Kind
	Title    string
	Overlay  Overlay
	required []Slot
	editable []int
	header   []string
}

// Required returns the document slots that must be filled before upload.
func (p Policy) Required() []Slot {
	return append([]Slot(nil), p.required...)
}

// EditableColumns returns the column indices the reviewer may change.
func (p Policy) EditableColumns() []int {
	return append([]int(nil), p.editable...)
}

// Header returns the known column labels for the flow, or nil when the
// header comes from a server-side template.
func (p Policy) Header() []string {
	return append([]string(nil), p.header...)
}

// Editable reports whether column col may be edited under this policy.
func (p Policy) Editable(col int) bool {
	for _, c := range p.editable {
		if c == col {
			return true
		}
	}
	return false
}

// Missing lists the required slots that have no document in docs.
func (p Policy) Missing(docs map[Slot]string) []Slot {
	var missing []Slot
	for _, s := range p.required {
		if strings.TrimSpace(docs[s]) == "" {
			missing = append(missing, s)
		}
	}
	return missing
}

// Satisfied reports whether docs fills every required slot.
func (p Policy) Satisfied(docs map[Slot]string) bool {
	return len(p.Missing(docs)) == 0
}

// Requires reports whether slot is part of the flow's document set.
func (p Policy) Requires(slot Slot) bool {
	for _, s := range p.required {
		if s == slot {
			return true
		}
	}
	return false
}

var order = []Kind{Kind850, Kind856, KindNestle}

var registry = map[Kind]Policy{
	Kind850: {
		Kind:     Kind850,
		Title:    "Inbound 850 purchase order",
		Overlay:  OverlayWarnings,
		required: []Slot{SlotEDI, SlotPDF},
		editable: []int{1, 2},
	},
	Kind856: {
		Kind:     Kind856,
		Title:    "Outbound 856 ship notice",
		Overlay:  OverlayNone,
		required: []Slot{SlotPDF},
		editable: []int{3, 4, 5, 6},
		header:   []string{"Seg.", "Occ.", "Element", "Type", "Source (Mapping)", "Hardcode", "Meaning", "Req"},
	},
	KindNestle: {
		Kind:     KindNestle,
		Title:    "Nestle 850 gap analysis",
		Overlay:  OverlayFlags,
		required: []Slot{SlotPDF},
		editable: []int{9, 15},
		header: []string{
			"SAP Segment", "SAP Segment Desc", "SAP Field", "SAP Field Desc",
			"SAP Data Type", "SAP Length", "X12 Segment", "X12 Element",
			"X12 Element Desc", "Mapping Rule", "PDF Seg Status", "PDF Elem Status",
			"PDF Values", "Mapping Source", "Confidence", "Notes",
		},
	},
}

// IsValid returns true if k is a registered flow kind.
func (k Kind) IsValid() bool {
	_, ok := registry[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}

// Parse resolves a user-supplied flow identifier.
func Parse(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "850", "inbound":
		return Kind850, nil
	case "856", "outbound":
		return Kind856, nil
	case "nestle", "nestle_850", "nestle-850":
		return KindNestle, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlow, s)
}

// Lookup returns the policy registered for k.
func Lookup(k Kind) (Policy, error) {
	p, ok := registry[k]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownFlow, string(k))
	}
	return p, nil
}

// All returns every registered policy in display order.
func All() []Policy {
	out := make([]Policy, 0, len(order))
	for _, k := range order {
		out = append(out, registry[k])
	}
	return out
}

// Editable is the editability mask: a pure function of flow kind and column
// index. Unknown kinds have no editable columns.
func Editable(k Kind, col int) bool {
	p, ok := registry[k]
	if !ok {
		return false
	}
	return p.Editable(col)
}
