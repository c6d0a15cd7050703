package targets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileDoc struct {
	Targets []Target `yaml:"targets"`
}

// LoadFile reads a YAML document of the form
//
//	targets:
//	  - name: Main
//	    host: play.example.com
//	    port: 27015
func LoadFile(path string) ([]Target, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse targets file %s: %w", path, err)
	}

	for i := range doc.Targets {
		if err := doc.Targets[i].Validate(); err != nil {
			return nil, fmt.Errorf("targets file %s entry %d: %w", path, i+1, err)
		}
	}

	return doc.Targets, nil
}
