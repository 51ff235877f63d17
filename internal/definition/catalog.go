package definition

import (
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/animus-labs/runstate/internal/domain"
)

// FilePatterns select workflow files inside a definitions directory.
var FilePatterns = []string{"**/*.flow.yaml", "**/*.flow.yml"}

// Catalog is an in-memory set of workflow definitions keyed by name.
type Catalog struct {
	workflows map[string]domain.WorkflowDefinition
	sources   map[string]string
}

// NewCatalog indexes defs by name. Two definitions with the same name are an error.
func NewCatalog(defs ...domain.WorkflowDefinition) (*Catalog, error) {
	c := &Catalog{
		workflows: make(map[string]domain.WorkflowDefinition, len(defs)),
		sources:   map[string]string{},
	}
	for _, def := range defs {
		if err := c.add(def, ""); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadDir reads every workflow file under dir.
func LoadDir(dir string) (*Catalog, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads every workflow file in fsys matching FilePatterns.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{
		workflows: map[string]domain.WorkflowDefinition{},
		sources:   map[string]string{},
	}
	seen := map[string]struct{}{}
	paths := []string{}
	for _, pattern := range FilePatterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, path := range matches {
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		defs, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, def := range defs {
			if err := c.add(def, path); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Catalog) add(def domain.WorkflowDefinition, source string) error {
	if _, exists := c.workflows[def.Name]; exists {
		if prev := c.sources[def.Name]; prev != "" {
			return fmt.Errorf("duplicate workflow %q (first defined in %s)", def.Name, prev)
		}
		return fmt.Errorf("duplicate workflow %q", def.Name)
	}
	c.workflows[def.Name] = def
	if source != "" {
		c.sources[def.Name] = source
	}
	return nil
}

// Workflow returns the definition named name.
func (c *Catalog) Workflow(name string) (domain.WorkflowDefinition, bool) {
	if c == nil {
		return domain.WorkflowDefinition{}, false
	}
	def, ok := c.workflows[name]
	return def, ok
}

// Names returns the workflow names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.workflows))
	for name := range c.workflows {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Source returns the file a workflow was loaded from, if any.
func (c *Catalog) Source(name string) string {
	return c.sources[name]
}
