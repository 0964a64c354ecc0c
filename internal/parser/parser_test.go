package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("full scene document", func(t *testing.T) {
		input := []byte(`---
title: The Vault
scene:
  id: scene-007
  position: 7
  location: The Vault
  time_of_day: night
  continuity: "30 minutes later"
  characters: [Rick, Alice]
entities:
  - id: prop-gun
    type: prop
    name: revolver
    aliases: [gun]
    attributes:
      caliber: ".38"
---
Rick pulls the revolver from the desk drawer.
`)
		doc, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if doc.Title != "The Vault" {
			t.Errorf("title = %q, want %q", doc.Title, "The Vault")
		}
		if doc.Scene == nil {
			t.Fatal("expected scene header")
		}
		if doc.Scene.ID != "scene-007" || doc.Scene.Position != 7 {
			t.Errorf("scene = %+v", doc.Scene)
		}
		if doc.Scene.Continuity != "30 minutes later" {
			t.Errorf("continuity = %q", doc.Scene.Continuity)
		}
		if len(doc.Scene.Characters) != 2 {
			t.Errorf("characters = %v", doc.Scene.Characters)
		}
		if len(doc.Entities) != 1 {
			t.Fatalf("entities = %d, want 1", len(doc.Entities))
		}
		if doc.Entities[0].Attributes["caliber"] != ".38" {
			t.Errorf("attributes = %v", doc.Entities[0].Attributes)
		}
		if doc.Body != "Rick pulls the revolver from the desk drawer.\n" {
			t.Errorf("body = %q", doc.Body)
		}
	})

	t.Run("entity-only document", func(t *testing.T) {
		input := []byte(`---
title: Cast Notes
entities:
  - id: char-alice
    type: character
    name: Alice
---
Background notes.
`)
		doc, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if doc.Scene != nil {
			t.Errorf("expected no scene header, got %+v", doc.Scene)
		}
		if len(doc.Entities) != 1 {
			t.Errorf("entities = %d, want 1", len(doc.Entities))
		}
	})

	t.Run("no frontmatter", func(t *testing.T) {
		_, err := Parse([]byte("Just prose, no header.\n"))
		if !errors.Is(err, ErrNoFrontmatter) {
			t.Errorf("err = %v, want ErrNoFrontmatter", err)
		}
	})

	t.Run("unterminated frontmatter", func(t *testing.T) {
		_, err := Parse([]byte("---\ntitle: Oops\n"))
		if !errors.Is(err, ErrNoFrontmatter) {
			t.Errorf("err = %v, want ErrNoFrontmatter", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Parse([]byte("---\ntitle: [unclosed\n---\nbody\n"))
		if !errors.Is(err, ErrInvalidYAML) {
			t.Errorf("err = %v, want ErrInvalidYAML", err)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		_, err := Parse([]byte("---\nscene:\n  id: s1\n  position: 1\n---\nbody\n"))
		if !errors.Is(err, ErrMissingTitle) {
			t.Errorf("err = %v, want ErrMissingTitle", err)
		}
	})

	t.Run("scene missing position", func(t *testing.T) {
		_, err := Parse([]byte("---\ntitle: T\nscene:\n  id: s1\n---\nbody\n"))
		if err == nil {
			t.Error("expected error for scene without position")
		}
	})

	t.Run("leading whitespace before frontmatter", func(t *testing.T) {
		doc, err := Parse([]byte("\n\n---\ntitle: Padded\n---\nbody\n"))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if doc.Title != "Padded" {
			t.Errorf("title = %q", doc.Title)
		}
	})

	t.Run("byte order mark before frontmatter", func(t *testing.T) {
		doc, err := Parse([]byte("\ufeff---\ntitle: Marked\n---\nbody\n"))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if doc.Title != "Marked" {
			t.Errorf("title = %q", doc.Title)
		}
	})
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.md")
	content := "---\ntitle: On Disk\nscene:\n  id: s1\n  position: 1\n---\nbody\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if doc.SourceFile != path {
		t.Errorf("SourceFile = %q, want %q", doc.SourceFile, path)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}
