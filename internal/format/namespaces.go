package format

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed namespaces.yaml
var namespacesYAML []byte

// Namespace is one range of the string table reserved for a namespace id.
type Namespace struct {
	ID    int `yaml:"id"`
	Min   int `yaml:"min"`
	Start int `yaml:"start"`
}

// NamespaceTable describes how namespaced string ids map onto the string array.
type NamespaceTable struct {
	ID         string      `yaml:"id"`
	IndexBits  uint        `yaml:"index_bits"`
	Namespaces []Namespace `yaml:"namespaces"`
}

type namespaceDocument struct {
	Tables []NamespaceTable `yaml:"tables"`
}

var loadNamespaceTables = sync.OnceValues(func() (map[string]*NamespaceTable, error) {
	var doc namespaceDocument
	if err := yaml.Unmarshal(namespacesYAML, &doc); err != nil {
		return nil, fmt.Errorf("decoding namespace tables: %w", err)
	}

	tables := make(map[string]*NamespaceTable, len(doc.Tables))
	for i := range doc.Tables {
		t := &doc.Tables[i]
		if t.IndexBits == 0 || t.IndexBits > 24 {
			return nil, fmt.Errorf("namespace table %s: invalid index_bits %d", t.ID, t.IndexBits)
		}
		if _, dup := tables[t.ID]; dup {
			return nil, fmt.Errorf("namespace table %s: duplicate id", t.ID)
		}
		sort.Slice(t.Namespaces, func(a, b int) bool {
			return t.Namespaces[a].ID < t.Namespaces[b].ID
		})
		tables[t.ID] = t
	}
	return tables, nil
})

// NamespaceTableByID returns the namespace table with the given id.
func NamespaceTableByID(id string) (*NamespaceTable, error) {
	tables, err := loadNamespaceTables()
	if err != nil {
		return nil, err
	}
	t, ok := tables[id]
	if !ok {
		return nil, fmt.Errorf("unknown namespace table %q", id)
	}
	return t, nil
}
