package classification

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestDefaultProfilesCoverEverySupportedType(t *testing.T) {
	store, err := DefaultProfiles()
	if err != nil {
		t.Fatalf("load default profiles: %v", err)
	}

	types := store.Types()
	if len(types) != len(domain.SupportedDocumentTypes) {
		t.Fatalf("expected %d profiles, got %d", len(domain.SupportedDocumentTypes), len(types))
	}
	for i, want := range domain.SupportedDocumentTypes {
		if types[i] != want {
			t.Fatalf("profile %d: expected %s, got %s", i, want, types[i])
		}
		if store.KeywordCount(want) == 0 {
			t.Fatalf("profile %s has no keywords", want)
		}
	}
	if got := store.KeywordCount(domain.TypeCMR); got != 18 {
		t.Fatalf("expected 18 CMR keywords across languages, got %d", got)
	}
}

func TestParseProfilesRejectsUnknownType(t *testing.T) {
	_, err := ParseProfiles([]byte("profiles:\n  - type: RECEIPT\n    keywords:\n      en:\n        - {text: RECEIPT, weight: 1}\n"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestParseProfilesRejectsDuplicates(t *testing.T) {
	raw := "profiles:\n  - type: CMR\n  - type: cmr\n"
	if _, err := ParseProfiles([]byte(raw)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestParseProfilesRejectsEmptyDocument(t *testing.T) {
	if _, err := ParseProfiles([]byte("profiles: []\n")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestLoadProfilesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	raw := "profiles:\n  - type: invoice\n    keywords:\n      en:\n        - {text: bill, weight: 2}\n    filename_hints: [inv]\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write profiles: %v", err)
	}

	store, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}
	c := NewClassifier(store)
	if got := c.Classify("monthly bill", Metadata{}); got != domain.TypeInvoice {
		t.Fatalf("expected INVOICE from custom profile, got %s", got)
	}
}
