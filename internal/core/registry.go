package core

import (
	"fmt"
	"sync"
)

// FieldType is the coercion applied to a field's cell.
type FieldType int

const (
	FieldText FieldType = iota
	FieldUpper
	FieldEnum
	FieldDate
	FieldNumeric
)

// FieldSpec describes one target field of a record kind.
type FieldSpec struct {
	Name    string    // Canonical field name, matches the record's json tag
	Aliases []string  // Accepted header spellings, compared after folding
	Type    FieldType // Coercion applied by the row reader
}

// BuildFunc builds a record candidate from a bound row.
type BuildFunc func(r *RowReader) Record

// KindDefinition contains everything needed to import one record kind.
type KindDefinition struct {
	Kind  RecordKind
	Label string

	// SheetVocabulary holds case-insensitive substrings that identify a sheet
	// of this kind by name.
	SheetVocabulary []string

	// Fields are listed in the positional order used when a sheet has no header.
	Fields []FieldSpec

	Build BuildFunc
}

// Field returns the definition of a canonical field name.
func (d KindDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

var (
	registry   = make(map[RecordKind]KindDefinition)
	registryMu sync.RWMutex
)

// Register adds a kind definition to the registry.
// Panics if the kind is already registered.
func Register(def KindDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Kind]; exists {
		panic(fmt.Sprintf("record kind already registered: %s", def.Kind))
	}
	registry[def.Kind] = def
}

// Get returns the definition of a record kind.
func Get(kind RecordKind) (KindDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[kind]
	return def, ok
}

// All returns the registered definitions in AllKinds order.
func All() []KindDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]KindDefinition, 0, len(registry))
	for _, k := range AllKinds {
		if def, ok := registry[k]; ok {
			result = append(result, def)
		}
	}
	return result
}
