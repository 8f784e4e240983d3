package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk registry declaration:
//
//	entities:
//	  article:
//	    fields:
//	      title: {type: text, indexed: true, sortable: true}
//	      age:   {type: number, indexed: true, sortable: true}
//	      body:
//	        type: text
//	        subfields:
//	          - {name: body_ngram, indexed: true}
type File struct {
	Entities map[string]Entity `yaml:"entities"`
}

// Load parses a YAML registry declaration and builds the Registry.
func Load(data []byte) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("schema: no entities declared")
	}
	return Build(file.Entities)
}

// LoadFile reads and parses a YAML registry declaration from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return Load(data)
}
