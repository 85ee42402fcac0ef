package layertree

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/epimap/pkg/metrics"
)

// DiagnosisPrefix marks the id namespace of diagnosis nodes.
const DiagnosisPrefix = "diagnostico-"

//go:embed taxonomy.yaml
var defaultTaxonomyYAML []byte

// TaxonomyNode is one entry of the static diagnosis catalog as written in YAML.
type TaxonomyNode struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Children []TaxonomyNode `yaml:"children,omitempty"`
}

// DefaultTaxonomy returns the built-in surveillance catalog.
func DefaultTaxonomy() TaxonomyNode {
	root, err := ParseTaxonomy(defaultTaxonomyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy is invalid: %v", err))
	}
	return root
}

// ParseTaxonomy decodes a taxonomy document.
func ParseTaxonomy(data []byte) (TaxonomyNode, error) {
	var root TaxonomyNode
	if err := yaml.Unmarshal(data, &root); err != nil {
		return TaxonomyNode{}, fmt.Errorf("parsing taxonomy: %w", err)
	}
	if root.ID == "" {
		return TaxonomyNode{}, fmt.Errorf("taxonomy root: %w", ErrEmptyID)
	}
	return root, nil
}

// ReadTaxonomy decodes a taxonomy from r.
func ReadTaxonomy(r io.Reader) (TaxonomyNode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return TaxonomyNode{}, fmt.Errorf("reading taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

// LoadTaxonomy reads a taxonomy file. An empty path yields the default catalog.
func LoadTaxonomy(path string) (TaxonomyNode, error) {
	defer metrics.Timer(metrics.TaxonomyLoad)()

	if path == "" {
		return DefaultTaxonomy(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return TaxonomyNode{}, fmt.Errorf("opening taxonomy: %w", err)
	}
	defer f.Close()
	return ReadTaxonomy(f)
}
