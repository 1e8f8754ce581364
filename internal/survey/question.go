package survey

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Question is owned by the questionnaire service; read-only here. TextHindi
// carries the pre-translated secondary-language rendering.
type Question struct {
	ID        int    `json:"id" yaml:"id"`
	Text      string `json:"question_text" yaml:"text"`
	TextHindi string `json:"question_text_hindi" yaml:"text_hindi"`
}

// Questionnaire is the active question set for the survey pass.
type Questionnaire struct {
	ID        int        `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Source provides the active questionnaire. The production source is the
// backend REST API; a file source exists for development and offline use.
type Source interface {
	ActiveQuestionnaire(ctx context.Context) (*Questionnaire, error)
}

// FileSource reads the questionnaire from a YAML file.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// ActiveQuestionnaire reads and parses the questionnaire file on every call
// so edits are picked up without a restart.
func (s *FileSource) ActiveQuestionnaire(ctx context.Context) (*Questionnaire, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questionnaire file: %w", err)
	}

	var q Questionnaire
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questionnaire YAML: %w", err)
	}
	return &q, nil
}
