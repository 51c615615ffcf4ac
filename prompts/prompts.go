// Package prompts holds the fixed instructions sent to the model.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var raw []byte

// Set is the parsed prompts file.
type Set struct {
	Transcription struct {
		Instruction string `yaml:"instruction"`
	} `yaml:"transcription"`
}

// Load parses the embedded prompts.
func Load() (*Set, error) {
	return Parse(raw)
}

// Parse reads a prompts file. Every prompt must be present.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	s.Transcription.Instruction = strings.TrimSpace(s.Transcription.Instruction)
	if s.Transcription.Instruction == "" {
		return nil, fmt.Errorf("parse prompts: transcription.instruction is empty")
	}
	return &s, nil
}

// MustLoad is Load for program start-up.
func MustLoad() *Set {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}
