// Package content loads the predefined phase-1 emails.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/phishdrill/internal/simulation"
	"gopkg.in/yaml.v3"
)

//go:embed predefined.yaml
var defaultContent []byte

// File is the YAML layout of a predefined content file.
type File struct {
	Version int         `yaml:"version"`
	Emails  []EmailFile `yaml:"emails"`
}

// EmailFile is one email in a content file.
type EmailFile struct {
	ID      string `yaml:"id"`
	Sender  string `yaml:"sender"`
	Subject string `yaml:"subject"`
	Date    string `yaml:"date"`
	Content string `yaml:"content"`
	IsSpam  bool   `yaml:"is_spam"`
}

// Default returns the built-in predefined emails.
func Default() ([]*simulation.ContentItem, error) {
	return Parse(defaultContent)
}

// Load reads predefined emails from path, or the built-in set when path is
// empty.
func Load(path string) ([]*simulation.ContentItem, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	items, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Parse decodes and validates a content file. Order is preserved.
func Parse(data []byte) ([]*simulation.ContentItem, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse content yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	items := make([]*simulation.ContentItem, len(f.Emails))
	for i, e := range f.Emails {
		items[i] = &simulation.ContentItem{
			ID:           e.ID,
			IsPredefined: true,
			IsSpam:       e.IsSpam,
			Sender:       e.Sender,
			Subject:      e.Subject,
			Date:         e.Date,
			Content:      strings.TrimSpace(e.Content),
			Source:       simulation.SourcePredefined,
			Slot:         i,
		}
	}
	return items, nil
}

// Validate checks the file holds exactly the phase-1 item count with
// unique ids and no empty fields.
func (f *File) Validate() error {
	var errs []error
	if len(f.Emails) != simulation.Phase1ItemCount {
		errs = append(errs, fmt.Errorf("need %d emails, got %d", simulation.Phase1ItemCount, len(f.Emails)))
	}

	seen := make(map[string]bool)
	for i, e := range f.Emails {
		switch {
		case e.ID == "":
			errs = append(errs, fmt.Errorf("email %d: id is required", i+1))
		case seen[e.ID]:
			errs = append(errs, fmt.Errorf("email %d: duplicate id %q", i+1, e.ID))
		}
		seen[e.ID] = true
		if e.Sender == "" || e.Subject == "" || strings.TrimSpace(e.Content) == "" {
			errs = append(errs, fmt.Errorf("email %d: sender, subject and content are required", i+1))
		}
	}
	return errors.Join(errs...)
}
