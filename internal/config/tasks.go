package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ignatij/goclassify/pkg/models"
	"gopkg.in/yaml.v3"
)

// TaskFile is the YAML form of a task definition.
type TaskFile struct {
	Name           string        `yaml:"name"`
	Description    string        `yaml:"description"`
	PromptTemplate string        `yaml:"prompt_template"`
	InputFields    models.Schema `yaml:"input_fields"`
	ResponseFields models.Schema `yaml:"response_fields"`
}

func (f TaskFile) Definition() models.TaskDefinition {
	return models.TaskDefinition{
		Name:           f.Name,
		Description:    f.Description,
		PromptTemplate: f.PromptTemplate,
		InputSchema:    f.InputFields,
		ResponseSchema: f.ResponseFields,
	}
}

// LoadTaskFile reads every task definition in path. A file may hold several
// YAML documents separated by "---".
func LoadTaskFile(path string) ([]models.TaskDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	defs, err := ParseTasks(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ParseTasks decodes YAML task documents. Unknown keys are rejected.
func ParseTasks(raw []byte) ([]models.TaskDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var defs []models.TaskDefinition
	for i := 1; ; i++ {
		var f TaskFile
		err := dec.Decode(&f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		defs = append(defs, f.Definition())
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no task definitions found")
	}
	return defs, nil
}
