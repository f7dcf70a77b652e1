package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MaxPartitionFields is the largest partition key arity a collection may declare.
// The record store keeps one column per field.
const MaxPartitionFields = 2

var (
	// ErrUnknownCollection is returned when a collection name is not in the registry.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrInvalidKey is returned when a partition key does not match the collection's shape.
	ErrInvalidKey = errors.New("invalid partition key")
)

var identifierRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Collection declares one logical category of staged documents.
// Collections differ only in this declaration, never in behavior.
//
// StoreName does not name a table: every database keeps its records in a
// table called "records". The label is stamped into collection_info on first
// open, and a later open under a different label is refused.
type Collection struct {
	Name            string   // registry key, e.g. "so_documents"
	DisplayName     string   // used in user-facing error messages
	DatabaseName    string   // one database per collection
	StoreName       string   // logical label of the record store
	PartitionFields []string // ordered fields of the compound partition index
}

// Key builds a partition key for this collection from values given in
// PartitionFields order.
func (c Collection) Key(values ...string) (PartitionKey, error) {
	key := PartitionKey(append([]string(nil), values...))
	if err := c.ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateKey checks that key has one non-empty value per partition field.
func (c Collection) ValidateKey(key PartitionKey) error {
	if len(key) != len(c.PartitionFields) {
		return fmt.Errorf("%w: %s expects %d value(s) (%s), got %d",
			ErrInvalidKey, c.Name, len(c.PartitionFields), strings.Join(c.PartitionFields, ", "), len(key))
	}
	for i, v := range key {
		if v == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidKey, c.PartitionFields[i])
		}
	}
	return nil
}

func (c Collection) validate() error {
	for _, id := range []string{c.Name, c.DatabaseName, c.StoreName} {
		if !identifierRe.MatchString(id) {
			return fmt.Errorf("collection %q: %q is not a valid identifier", c.Name, id)
		}
	}
	if c.DisplayName == "" {
		return fmt.Errorf("collection %q: display name is required", c.Name)
	}
	if n := len(c.PartitionFields); n < 1 || n > MaxPartitionFields {
		return fmt.Errorf("collection %q: must declare 1 to %d partition fields, got %d", c.Name, MaxPartitionFields, n)
	}
	seen := make(map[string]bool, len(c.PartitionFields))
	for _, f := range c.PartitionFields {
		if f == "" {
			return fmt.Errorf("collection %q: empty partition field", c.Name)
		}
		if seen[f] {
			return fmt.Errorf("collection %q: duplicate partition field %q", c.Name, f)
		}
		seen[f] = true
	}
	return nil
}

// PartitionKey is the ordered tuple of scoping values that segregates records
// within a collection, e.g. (cycleId, programId).
type PartitionKey []string

// Columns returns the key padded to MaxPartitionFields values, as stored.
func (k PartitionKey) Columns() [MaxPartitionFields]string {
	var cols [MaxPartitionFields]string
	copy(cols[:], k)
	return cols
}

// Equal reports whether two keys hold the same values in the same order.
func (k PartitionKey) Equal(other PartitionKey) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

func (k PartitionKey) String() string {
	return "(" + strings.Join(k, ", ") + ")"
}

// Registry is the static table of collections known to the store.
type Registry struct {
	byName map[string]Collection
	names  []string
}

// builtin holds one collection per document category of the portal.
var builtin = []Collection{
	{
		Name:            "so_documents",
		DisplayName:     "SO documents",
		DatabaseName:    "docstage_so",
		StoreName:       "so_documents",
		PartitionFields: []string{"cycleId", "programId"},
	},
	{
		Name:            "clo_documents",
		DisplayName:     "CLO documents",
		DatabaseName:    "docstage_clo",
		StoreName:       "clo_documents",
		PartitionFields: []string{"cycleId", "programId"},
	},
	{
		Name:            "peo_documents",
		DisplayName:     "PEO documents",
		DatabaseName:    "docstage_peo",
		StoreName:       "peo_documents",
		PartitionFields: []string{"cycleId", "programId"},
	},
	{
		Name:            "background_info",
		DisplayName:     "background-info documents",
		DatabaseName:    "docstage_background",
		StoreName:       "background_documents",
		PartitionFields: []string{"cycleId", "sectionTitle"},
	},
	{
		Name:            "criterion5_documents",
		DisplayName:     "criterion 5 documents",
		DatabaseName:    "docstage_criterion5",
		StoreName:       "criterion5_documents",
		PartitionFields: []string{"cycleId", "sectionTitle"},
	},
	{
		Name:            "evidence_library",
		DisplayName:     "evidence library",
		DatabaseName:    "docstage_evidence",
		StoreName:       "evidence_documents",
		PartitionFields: []string{"cycleId"},
	},
}

// New creates a Registry from the given collections after validating them.
func New(collections ...Collection) (*Registry, error) {
	r := &Registry{byName: make(map[string]Collection, len(collections))}
	databases := make(map[string]string, len(collections))

	for _, c := range collections {
		if err := c.validate(); err != nil {
			return nil, err
		}
		if _, ok := r.byName[c.Name]; ok {
			return nil, fmt.Errorf("duplicate collection %q", c.Name)
		}
		if other, ok := databases[c.DatabaseName]; ok {
			return nil, fmt.Errorf("collections %q and %q share database %q", other, c.Name, c.DatabaseName)
		}
		databases[c.DatabaseName] = c.Name

		c.PartitionFields = append([]string(nil), c.PartitionFields...)
		r.byName[c.Name] = c
		r.names = append(r.names, c.Name)
	}

	sort.Strings(r.names)
	return r, nil
}

// Default returns the registry of built-in collections.
func Default() *Registry {
	r, err := New(builtin...)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema registry: %v", err))
	}
	return r
}

// Lookup returns the collection registered under name.
func (r *Registry) Lookup(name string) (Collection, error) {
	c, ok := r.byName[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return c, nil
}

// Names returns all collection names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// All returns every registered collection, sorted by name.
func (r *Registry) All() []Collection {
	out := make([]Collection, len(r.names))
	for i, name := range r.names {
		out[i] = r.byName[name]
	}
	return out
}
