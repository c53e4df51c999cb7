package models

import (
	"encoding/json"
	"fmt"

	"github.com/benmeehan/whereis-agent/pkg/store"
)

// StatusRecord is the externally owned status shown in the indicator.
type StatusRecord struct {
	Name      string // Stringified name; "null" when absent
	UpdatedAt *int64 // Milliseconds since epoch, nil when absent or not an integer
}

// ParseStatusRecord reads a status record from a store snapshot.
func ParseStatusRecord(snap store.Snapshot) StatusRecord {
	record := StatusRecord{Name: "null"}

	if name, ok := snap.Child("name"); ok {
		record.Name = stringify(name)
	}
	if raw, ok := snap.Child("updatedAt"); ok {
		if n, ok := raw.(json.Number); ok {
			if ms, err := n.Int64(); err == nil {
				record.UpdatedAt = &ms
			}
		}
	}
	return record
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
