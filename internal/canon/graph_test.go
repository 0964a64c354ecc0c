package canon

import (
	"bytes"
	"errors"
	"testing"
)

func TestUpsert(t *testing.T) {
	t.Run("alias uniqueness holds across entities", func(t *testing.T) {
		g := NewGraph()
		if err := g.Upsert(&Entity{ID: "char-rick", Type: TypeCharacter, Name: "Rick", Aliases: []string{"Blaine"}}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		err := g.Upsert(&Entity{ID: "char-other", Type: TypeCharacter, Name: "Other", Aliases: []string{"Blaine"}})
		var aliasErr *AliasConflictError
		if !errors.As(err, &aliasErr) {
			t.Fatalf("err = %v, want AliasConflictError", err)
		}
		if aliasErr.OwnerID != "char-rick" || aliasErr.ClaimantID != "char-other" {
			t.Errorf("conflict = %+v", aliasErr)
		}
	})

	t.Run("type change on existing id is an identity conflict", func(t *testing.T) {
		g := NewGraph()
		if err := g.Upsert(&Entity{ID: "x", Type: TypeProp, Name: "The Falcon"}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		err := g.Upsert(&Entity{ID: "x", Type: TypeLocation, Name: "The Falcon"})
		var idErr *IdentityConflictError
		if !errors.As(err, &idErr) {
			t.Fatalf("err = %v, want IdentityConflictError", err)
		}
	})

	t.Run("replacing an entity releases its old aliases", func(t *testing.T) {
		g := NewGraph()
		if err := g.Upsert(&Entity{ID: "a", Type: TypeCharacter, Name: "A", Aliases: []string{"Ace"}}); err != nil {
			t.Fatal(err)
		}
		if err := g.Upsert(&Entity{ID: "a", Type: TypeCharacter, Name: "A"}); err != nil {
			t.Fatal(err)
		}
		if err := g.Upsert(&Entity{ID: "b", Type: TypeCharacter, Name: "B", Aliases: []string{"Ace"}}); err != nil {
			t.Errorf("released alias still blocks: %v", err)
		}
	})

	t.Run("invalid type rejected", func(t *testing.T) {
		g := NewGraph()
		if err := g.Upsert(&Entity{ID: "x", Type: "vehicle", Name: "Car"}); err == nil {
			t.Error("expected error for invalid type")
		}
	})
}

func TestResolveAlias(t *testing.T) {
	g := NewGraph()
	if err := g.Upsert(&Entity{ID: "char-rick", Type: TypeCharacter, Name: "Rick", Aliases: []string{"Mr. Blaine"}}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		text       string
		wantID     string
		confidence float64
		ok         bool
	}{
		{"Rick", "char-rick", 1.0, true},
		{"Mr. Blaine", "char-rick", 1.0, true},
		{"rick", "char-rick", 0.95, true},
		{"MR. BLAINE", "char-rick", 0.95, true},
		{"Ilsa", "", 0, false},
		{"   ", "", 0, false},
	}
	for _, tc := range cases {
		id, conf, ok := g.ResolveAlias(tc.text)
		if ok != tc.ok || id != tc.wantID || conf != tc.confidence {
			t.Errorf("ResolveAlias(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tc.text, id, conf, ok, tc.wantID, tc.confidence, tc.ok)
		}
	}
}

func TestClone(t *testing.T) {
	g := NewGraph()
	if err := g.Upsert(&Entity{ID: "char-a", Type: TypeCharacter, Name: "A", Aliases: []string{"Ace"}}); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertScene(&Scene{ID: "s1", Position: 1, Characters: []string{"char-a"}}); err != nil {
		t.Fatal(err)
	}

	clone := g.Clone()
	if err := clone.Upsert(&Entity{ID: "char-a", Type: TypeCharacter, Name: "Changed"}); err != nil {
		t.Fatal(err)
	}
	orig, _ := g.Find("char-a")
	if orig.Name != "A" {
		t.Errorf("mutating the clone reached the original: %q", orig.Name)
	}
	if _, _, ok := g.ResolveAlias("Ace"); !ok {
		t.Error("original alias index damaged by clone mutation")
	}
}

func TestCheck(t *testing.T) {
	t.Run("unknown scene location", func(t *testing.T) {
		g := NewGraph()
		if err := g.UpsertScene(&Scene{ID: "s1", Position: 1, LocationID: "loc-missing"}); err != nil {
			t.Fatal(err)
		}
		if err := g.Check(); err == nil {
			t.Error("expected error for dangling location")
		}
	})

	t.Run("character reference with wrong type", func(t *testing.T) {
		g := NewGraph()
		if err := g.Upsert(&Entity{ID: "prop-gun", Type: TypeProp, Name: "gun"}); err != nil {
			t.Fatal(err)
		}
		if err := g.UpsertScene(&Scene{ID: "s1", Position: 1, Characters: []string{"prop-gun"}}); err != nil {
			t.Fatal(err)
		}
		if err := g.Check(); err == nil {
			t.Error("expected error for prop listed as character")
		}
	})

	t.Run("valid graph passes", func(t *testing.T) {
		g := NewGraph()
		if err := g.Upsert(&Entity{ID: "loc-bar", Type: TypeLocation, Name: "The Bar"}); err != nil {
			t.Fatal(err)
		}
		if err := g.Upsert(&Entity{ID: "char-a", Type: TypeCharacter, Name: "A"}); err != nil {
			t.Fatal(err)
		}
		if err := g.UpsertScene(&Scene{ID: "s1", Position: 1, LocationID: "loc-bar", Characters: []string{"char-a"}}); err != nil {
			t.Fatal(err)
		}
		if err := g.Check(); err != nil {
			t.Errorf("Check: %v", err)
		}
	})
}

func TestEncodeJSON_Deterministic(t *testing.T) {
	build := func(order []string) *Graph {
		g := NewGraph()
		for _, id := range order {
			if err := g.Upsert(&Entity{ID: id, Type: TypeCharacter, Name: "N " + id, Aliases: []string{"z-" + id, "a-" + id}}); err != nil {
				t.Fatal(err)
			}
		}
		if err := g.UpsertScene(&Scene{ID: "s1", Position: 1}); err != nil {
			t.Fatal(err)
		}
		return g
	}

	a, err := build([]string{"char-1", "char-2", "char-3"}).EncodeJSON()
	if err != nil {
		t.Fatal(err)
	}
	b, err := build([]string{"char-3", "char-1", "char-2"}).EncodeJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("insertion order leaked into encoding:\n%s\n%s", a, b)
	}
}

func TestDecodeJSON(t *testing.T) {
	g := NewGraph()
	if err := g.Upsert(&Entity{ID: "char-a", Type: TypeCharacter, Name: "A", Attributes: map[string]string{"hair": "red"}}); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertScene(&Scene{ID: "s1", Position: 1, Characters: []string{"char-a"}, Content: "prose"}); err != nil {
		t.Fatal(err)
	}

	data, err := g.EncodeJSON()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	e, ok := decoded.Find("char-a")
	if !ok || e.Attributes["hair"] != "red" {
		t.Errorf("entity = %+v", e)
	}
	s, ok := decoded.FindScene("s1")
	if !ok || s.Content != "prose" {
		t.Errorf("scene = %+v", s)
	}

	if _, err := DecodeJSON([]byte(`{"version": 99}`)); err == nil {
		t.Error("expected error for unknown version")
	}
	if _, err := DecodeJSON([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed input")
	}
}
