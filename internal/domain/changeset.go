package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TrackedField names a ticket field that participates in change sets.
type TrackedField string

const (
	FieldStatus       TrackedField = "status"
	FieldPriority     TrackedField = "priority"
	FieldAssignedRole TrackedField = "assignedRole"
	FieldAssignedTo   TrackedField = "assignedTo"
)

// trackedOrder fixes iteration order for messages and payloads.
var trackedOrder = []TrackedField{FieldStatus, FieldPriority, FieldAssignedRole, FieldAssignedTo}

// FieldChange is the before/after value of one field. An empty string is an
// absent value (an unassigned assignedTo) and encodes as JSON null.
type FieldChange struct {
	Old string
	New string
}

type fieldChangeJSON struct {
	Old *string `json:"old"`
	New *string `json:"new"`
}

// MarshalJSON writes empty values as null.
func (f FieldChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(fieldChangeJSON{Old: nullable(f.Old), New: nullable(f.New)})
}

// UnmarshalJSON reads null as an empty value.
func (f *FieldChange) UnmarshalJSON(data []byte) error {
	var raw fieldChangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Old, f.New = "", ""
	if raw.Old != nil {
		f.Old = *raw.Old
	}
	if raw.New != nil {
		f.New = *raw.New
	}
	return nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// ChangeSet holds only the fields an update actually changed.
type ChangeSet map[TrackedField]FieldChange

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c) == 0
}

// Has reports whether field changed.
func (c ChangeSet) Has(field TrackedField) bool {
	_, ok := c[field]
	return ok
}

// Record stores old→new when they differ.
func (c ChangeSet) Record(field TrackedField, old, next string) {
	if old == next {
		return
	}
	c[field] = FieldChange{Old: old, New: next}
}

// Describe renders a human readable summary for the activity log.
func (c ChangeSet) Describe() string {
	parts := make([]string, 0, len(c))
	for _, field := range trackedOrder {
		ch, ok := c[field]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s changed from %s to %s", field, orNone(ch.Old), orNone(ch.New)))
	}
	return strings.Join(parts, "; ")
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
