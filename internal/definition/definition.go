package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/runstate/internal/domain"
)

// Document is the YAML layout of one workflow definition.
//
//	name: jobe
//	jobs:
//	  - name: joba
//	    source: joba.job
//	  - name: jobb
//	    flow: innerFlow
//	    dependsOn: [joba]
type Document struct {
	Name  string         `yaml:"name"`
	Jobs  []JobDocument  `yaml:"jobs"`
	Edges []EdgeDocument `yaml:"edges,omitempty"`
}

type JobDocument struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type,omitempty"`
	Source      string   `yaml:"source,omitempty"`
	PropsSource string   `yaml:"propsSource,omitempty"`
	Flow        string   `yaml:"flow,omitempty"`
	DependsOn   []string `yaml:"dependsOn,omitempty"`
}

type EdgeDocument struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Parse decodes every YAML document in input. A file may hold several
// workflows separated by "---".
func Parse(input []byte) ([]domain.WorkflowDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(input))
	out := []domain.WorkflowDefinition{}
	for {
		var doc Document
		err := dec.Decode(&doc)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode workflow: %w", err)
		}
		if strings.TrimSpace(doc.Name) == "" && len(doc.Jobs) == 0 {
			continue
		}
		def := doc.toDomain()
		if err := def.ValidateBasicShape(); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (d Document) toDomain() domain.WorkflowDefinition {
	def := domain.WorkflowDefinition{
		Name:  strings.TrimSpace(d.Name),
		Jobs:  make([]domain.WorkflowJob, 0, len(d.Jobs)),
		Edges: make([]domain.WorkflowEdge, 0, len(d.Edges)),
	}
	for _, job := range d.Jobs {
		def.Jobs = append(def.Jobs, domain.WorkflowJob{
			Name:        job.Name,
			Type:        job.Type,
			Source:      job.Source,
			PropsSource: job.PropsSource,
			Flow:        strings.TrimSpace(job.Flow),
			DependsOn:   append([]string(nil), job.DependsOn...),
		})
	}
	for _, edge := range d.Edges {
		def.Edges = append(def.Edges, domain.WorkflowEdge{From: edge.From, To: edge.To})
	}
	return def
}
