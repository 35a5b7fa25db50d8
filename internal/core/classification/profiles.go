package classification

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const (
	FuzzyMatchThreshold = 0.85
	FilenameBonus       = 2.0
	ExclusiveBoost      = 1.5
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

type Keyword struct {
	Text   string  `yaml:"text"`
	Weight float64 `yaml:"weight"`
}

// Profile holds the scoring signals for one document type.
type Profile struct {
	Type              domain.DocumentType  `yaml:"type"`
	Keywords          map[string][]Keyword `yaml:"keywords"`
	FilenameHints     []string             `yaml:"filename_hints"`
	ExclusiveKeywords []string             `yaml:"exclusive_keywords"`
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

type indexedKeyword struct {
	text   string
	weight float64
}

type indexedProfile struct {
	docType   domain.DocumentType
	keywords  []indexedKeyword
	hints     []string
	exclusive []string
}

// ProfileStore is the read-only, upper-cased keyword index built from profiles.
// It is safe for concurrent use once constructed.
type ProfileStore struct {
	profiles []indexedProfile
}

func DefaultProfiles() (*ProfileStore, error) {
	return ParseProfiles(defaultProfilesYAML)
}

// LoadProfiles reads a profile file, falling back to the embedded set when path is empty.
func LoadProfiles(path string) (*ProfileStore, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfiles()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classification profiles: %w", err)
	}
	return ParseProfiles(raw)
}

func ParseProfiles(raw []byte) (*ProfileStore, error) {
	var file profileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse classification profiles", err)
	}
	if len(file.Profiles) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse classification profiles", fmt.Errorf("no profiles defined"))
	}

	store := &ProfileStore{profiles: make([]indexedProfile, 0, len(file.Profiles))}
	seen := make(map[domain.DocumentType]struct{}, len(file.Profiles))
	for _, p := range file.Profiles {
		docType, ok := domain.ParseDocumentType(string(p.Type))
		if !ok || docType == domain.TypeUnknown {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse classification profiles", fmt.Errorf("unknown document type %q", p.Type))
		}
		if _, dup := seen[docType]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse classification profiles", fmt.Errorf("duplicate profile %q", docType))
		}
		seen[docType] = struct{}{}
		store.profiles = append(store.profiles, indexProfile(docType, p))
	}
	return store, nil
}

func indexProfile(docType domain.DocumentType, p Profile) indexedProfile {
	langs := make([]string, 0, len(p.Keywords))
	for lang := range p.Keywords {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	ip := indexedProfile{docType: docType}
	for _, lang := range langs {
		for _, kw := range p.Keywords[lang] {
			text := strings.ToUpper(strings.TrimSpace(kw.Text))
			if text == "" || kw.Weight <= 0 {
				continue
			}
			ip.keywords = append(ip.keywords, indexedKeyword{text: text, weight: kw.Weight})
		}
	}
	for _, h := range p.FilenameHints {
		if h = strings.ToUpper(strings.TrimSpace(h)); h != "" {
			ip.hints = append(ip.hints, h)
		}
	}
	for _, e := range p.ExclusiveKeywords {
		if e = strings.ToUpper(strings.TrimSpace(e)); e != "" {
			ip.exclusive = append(ip.exclusive, e)
		}
	}
	return ip
}

// Types lists profiled document types in file order.
func (s *ProfileStore) Types() []domain.DocumentType {
	out := make([]domain.DocumentType, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.docType)
	}
	return out
}

// KeywordCount is the number of indexed keywords for docType.
func (s *ProfileStore) KeywordCount(docType domain.DocumentType) int {
	for _, p := range s.profiles {
		if p.docType == docType {
			return len(p.keywords)
		}
	}
	return 0
}
