// Package mapper translates records between the remote store's snake_case
// columns and the camelCase keys used everywhere else in the service.
package mapper

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Record map[string]any

type FieldMapper struct {
	toInternal map[string]string
	toWire     map[string]string
	optional   map[string]bool
}

// pair is {wire, internal}.
type pair [2]string

func newFieldMapper(pairs []pair, optionalInternal []string) *FieldMapper {
	m := &FieldMapper{
		toInternal: make(map[string]string, len(pairs)),
		toWire:     make(map[string]string, len(pairs)),
		optional:   make(map[string]bool, len(optionalInternal)),
	}
	for _, p := range pairs {
		m.toInternal[p[0]] = p[1]
		m.toWire[p[1]] = p[0]
	}
	for _, k := range optionalInternal {
		m.optional[k] = true
		if wire, ok := m.toWire[k]; ok {
			m.optional[wire] = true
		}
	}
	return m
}

var events = newFieldMapper(
	[]pair{
		{"id", "id"},
		{"name", "name"},
		{"type", "type"},
		{"date", "date"},
		{"event_time", "time"},
		{"location", "location"},
		{"description", "description"},
		{"capacity", "capacity"},
		{"fee", "fee"},
		{"deadline", "deadline"},
		{"active", "active"},
		{"poster_url", "posterUrl"},
		{"created_at", "createdAt"},
		{"updated_at", "updatedAt"},
	},
	[]string{"time", "location", "description", "capacity", "fee", "deadline", "posterUrl"},
)

var registrations = newFieldMapper(
	[]pair{
		{"id", "id"},
		{"event_id", "eventId"},
		{"name", "name"},
		{"email", "email"},
		{"phone", "phone"},
		{"grade", "grade"},
		{"class_name", "className"},
		{"seat_number", "seatNumber"},
		{"birthdate", "birthdate"},
		{"dietary_requirements", "dietaryRequirements"},
		{"notes", "notes"},
		{"signature_data", "signatureImage"},
		{"registration_date", "registrationDate"},
		{"status", "status"},
		{"submitted_at", "submittedAt"},
		{"updated_at", "updatedAt"},
	},
	[]string{
		"email", "phone", "grade", "className", "seatNumber", "birthdate",
		"dietaryRequirements", "notes", "signatureImage",
	},
)

func Events() *FieldMapper        { return events }
func Registrations() *FieldMapper { return registrations }

// ToInternal renames wire columns to internal keys. Unknown keys pass through.
func (m *FieldMapper) ToInternal(r Record) Record {
	return m.translate(r, m.toInternal)
}

// ToWire renames internal keys to wire columns. Unknown keys pass through.
func (m *FieldMapper) ToWire(r Record) Record {
	return m.translate(r, m.toWire)
}

func (m *FieldMapper) translate(r Record, names map[string]string) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		target, ok := names[k]
		if !ok {
			target = k
		}
		if m.optional[k] {
			v = normalizeOptional(v)
		}
		out[target] = v
	}
	return out
}

// Normalize applies the optional-field rules without renaming any key.
func (m *FieldMapper) Normalize(r Record) Record {
	return m.translate(r, nil)
}

// normalizeOptional turns blank strings into an explicit null.
func normalizeOptional(v any) any {
	s, ok := v.(string)
	if ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return v
}

// Without returns a copy of r lacking the given keys.
func (r Record) Without(keys ...string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func Encode(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return r, nil
}

func Decode(r Record, v any) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
