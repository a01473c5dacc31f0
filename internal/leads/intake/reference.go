package intake

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var defaultReference []byte

// Option is one selectable value of a reference list.
type Option struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// ReferenceData holds the countries and visa categories a submission may use.
type ReferenceData struct {
	Countries []Option `yaml:"countries" json:"countries"`
	Visas     []Option `yaml:"visas" json:"visas"`

	countries map[string]struct{}
	visas     map[string]struct{}
}

// LoadReferenceData reads the lists from a YAML file. An empty path loads the
// built-in lists.
func LoadReferenceData(path string) (*ReferenceData, error) {
	if path == "" {
		return ParseReferenceData(defaultReference)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference data: %w", err)
	}
	return ParseReferenceData(b)
}

// DefaultReferenceData returns the built-in lists.
func DefaultReferenceData() *ReferenceData {
	ref, err := ParseReferenceData(defaultReference)
	if err != nil {
		panic(fmt.Sprintf("embedded reference data: %v", err))
	}
	return ref
}

// ParseReferenceData decodes YAML and rejects empty or duplicate ids.
func ParseReferenceData(b []byte) (*ReferenceData, error) {
	var ref ReferenceData
	if err := yaml.Unmarshal(b, &ref); err != nil {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}
	var err error
	if ref.countries, err = index("countries", ref.Countries); err != nil {
		return nil, err
	}
	if ref.visas, err = index("visas", ref.Visas); err != nil {
		return nil, err
	}
	return &ref, nil
}

func index(list string, opts []Option) (map[string]struct{}, error) {
	if len(opts) == 0 {
		return nil, fmt.Errorf("reference data: %s list is empty", list)
	}
	idx := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if o.ID == "" {
			return nil, fmt.Errorf("reference data: %s entry %q has no id", list, o.Label)
		}
		if _, dup := idx[o.ID]; dup {
			return nil, fmt.Errorf("reference data: duplicate %s id %q", list, o.ID)
		}
		idx[o.ID] = struct{}{}
	}
	return idx, nil
}

// HasCountry reports whether id is a known country.
func (r *ReferenceData) HasCountry(id string) bool {
	_, ok := r.countries[id]
	return ok
}

// HasVisa reports whether id is a known visa category.
func (r *ReferenceData) HasVisa(id string) bool {
	_, ok := r.visas[id]
	return ok
}
