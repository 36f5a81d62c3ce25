package persona

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

//go:embed template.json
var templateJSON []byte

// schema is the compiled persona document schema, applied on every load.
var schema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("persona.schema.json", strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("persona: add schema resource: %v", err))
	}
	return c.MustCompile("persona.schema.json")
}()

// docFormat is the on-disk encoding of a persona document.
type docFormat int

const (
	formatJSON docFormat = iota
	formatYAML
)

// formatForPath picks the document encoding from the file extension.
// Unknown extensions default to JSON.
func formatForPath(path string) docFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

// Store owns the persona document for the lifetime of the process. Reads
// get a deep copy; mutations go through Update, which rewrites the backing
// file wholesale before returning.
type Store struct {
	mu     sync.RWMutex
	path   string
	format docFormat
	doc    Document
}

// Open loads the persona document at path. A missing file falls back to the
// embedded template (logged, not fatal); a present but invalid file is an
// error so a typo cannot silently erase a character.
func Open(path string) (*Store, error) {
	format := formatForPath(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("persona file not found, using embedded template", "path", path)
		data, format = templateJSON, formatJSON
	} else if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}

	doc, err := parse(data, format)
	if err != nil {
		return nil, err
	}

	return &Store{path: path, format: format, doc: *doc}, nil
}

// parse decodes and validates a persona document.
func parse(data []byte, format docFormat) (*Document, error) {
	// Decode into a generic value first so the schema sees the raw
	// document, then into the typed struct.
	var raw any
	var doc Document
	switch format {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("persona: parse yaml: %w", err)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("persona: parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("persona: parse json: %w", err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("persona: parse json: %w", err)
		}
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("persona: document failed validation: %w", err)
	}
	return &doc, nil
}

// Snapshot returns a deep copy of the current document. Mutating the copy
// does not affect the store.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.doc)
}

// Name returns the persona's display name.
func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Profile.Name
}

// Update applies fn to the document under the write lock and persists the
// result. When fn returns an error the document is left unchanged and
// nothing is written.
func (s *Store) Update(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := deepCopy(s.doc)
	if err := fn(&working); err != nil {
		return err
	}

	if err := s.write(working); err != nil {
		return fmt.Errorf("persona: persist %s: %w", s.path, err)
	}
	s.doc = working
	return nil
}

// write serializes doc in the store's on-disk format.
func (s *Store) write(doc Document) error {
	var data []byte
	var err error
	switch s.format {
	case formatYAML:
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// deepCopy clones a document including its slices and maps.
func deepCopy(d Document) Document {
	out := d
	out.Profile.Aliases = append([]string(nil), d.Profile.Aliases...)
	out.Personality.Traits = append([]string(nil), d.Personality.Traits...)
	out.Personality.Likes = append([]string(nil), d.Personality.Likes...)
	out.Personality.Dislikes = append([]string(nil), d.Personality.Dislikes...)
	out.Knowledge.Commands = append([]CannedCommand(nil), d.Knowledge.Commands...)
	if d.Knowledge.Relationships != nil {
		out.Knowledge.Relationships = make(map[string]string, len(d.Knowledge.Relationships))
		for k, v := range d.Knowledge.Relationships {
			out.Knowledge.Relationships[k] = v
		}
	}
	return out
}
