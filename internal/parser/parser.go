// Package parser reads story documents: YAML frontmatter declaring the scene
// and any canon entities, followed by the prose body.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Document struct {
	Title      string
	Scene      *SceneHeader
	Entities   []EntityDecl
	Body       string
	SourceFile string
}

// SceneHeader is the scene metadata a document declares about itself.
// Location and characters are names, not ids; extraction resolves them.
type SceneHeader struct {
	ID         string   `yaml:"id"`
	Position   int      `yaml:"position"`
	Location   string   `yaml:"location"`
	TimeOfDay  string   `yaml:"time_of_day"`
	Continuity string   `yaml:"continuity"`
	Characters []string `yaml:"characters"`
}

// EntityDecl is one canon entity declared in frontmatter.
type EntityDecl struct {
	ID         string            `yaml:"id"`
	Type       string            `yaml:"type"`
	Name       string            `yaml:"name"`
	Aliases    []string          `yaml:"aliases"`
	Attributes map[string]string `yaml:"attributes"`
}

type frontmatter struct {
	Title    string       `yaml:"title"`
	Scene    *SceneHeader `yaml:"scene"`
	Entities []EntityDecl `yaml:"entities"`
}

var (
	ErrNoFrontmatter = errors.New("no frontmatter found")
	ErrInvalidYAML   = errors.New("invalid YAML in frontmatter")
	ErrMissingTitle  = errors.New("frontmatter missing required 'title' field")
)

func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.SourceFile = path
	return doc, nil
}

func Parse(content []byte) (*Document, error) {
	trimmed := bytes.TrimLeft(content, "\ufeff\n\r\t ")
	if !bytes.HasPrefix(trimmed, []byte("---\n")) {
		return nil, ErrNoFrontmatter
	}

	rest := trimmed[len("---\n"):]
	end := bytes.Index(rest, []byte("---\n"))
	if end == -1 {
		return nil, ErrNoFrontmatter
	}

	yamlBytes := rest[:end]
	body := string(rest[end+len("---\n"):])

	var front frontmatter
	if err := yaml.Unmarshal(yamlBytes, &front); err != nil {
		return nil, ErrInvalidYAML
	}

	if strings.TrimSpace(front.Title) == "" {
		return nil, ErrMissingTitle
	}
	if front.Scene != nil {
		if strings.TrimSpace(front.Scene.ID) == "" {
			return nil, fmt.Errorf("scene declaration missing id")
		}
		if front.Scene.Position <= 0 {
			return nil, fmt.Errorf("scene %s needs a positive position", front.Scene.ID)
		}
	}
	for i, decl := range front.Entities {
		if strings.TrimSpace(decl.ID) == "" {
			return nil, fmt.Errorf("entity declaration %d missing id", i)
		}
		if strings.TrimSpace(decl.Type) == "" {
			return nil, fmt.Errorf("entity %s missing type", decl.ID)
		}
		if strings.TrimSpace(decl.Name) == "" {
			return nil, fmt.Errorf("entity %s missing name", decl.ID)
		}
	}

	return &Document{
		Title:    front.Title,
		Scene:    front.Scene,
		Entities: front.Entities,
		Body:     body,
	}, nil
}
