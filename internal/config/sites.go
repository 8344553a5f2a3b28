package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/query"
)

// Site is a named domain whose rank is tracked.
type Site struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
}

// Sites is the content of the sites file.
type Sites struct {
	Target           Site              `yaml:"target"`
	Competitors      []Site            `yaml:"competitors"`
	OfficialPatterns []string          `yaml:"official_patterns"`
	AmbiguousQueries map[string]string `yaml:"ambiguous_queries"`
}

// DefaultSites returns an empty site list with the default official
// patterns and acronym table.
func DefaultSites() Sites {
	s := Sites{}
	s.applyDefaults()
	return s
}

// LoadSites reads and normalizes a YAML sites file. Omitted
// official_patterns and ambiguous_queries fall back to the built-in lists;
// an explicit empty list disables them.
func LoadSites(path string) (*Sites, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read sites file: %w", err)
	}

	var s Sites
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: parse sites file %s: %w", path, err)
	}
	s.applyDefaults()
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Sites) applyDefaults() {
	if s.OfficialPatterns == nil {
		s.OfficialPatterns = append([]string(nil), analyzer.DefaultOfficialPatterns...)
	}
	if s.AmbiguousQueries == nil {
		s.AmbiguousQueries = make(map[string]string, len(query.DefaultAmbiguous))
		for k, v := range query.DefaultAmbiguous {
			s.AmbiguousQueries[k] = v
		}
	}
}

func (s *Sites) normalize() error {
	if s.Target.Domain != "" {
		if err := s.Target.normalize(); err != nil {
			return fmt.Errorf("%w: target: %v", ErrInvalid, err)
		}
	}
	for i := range s.Competitors {
		if err := s.Competitors[i].normalize(); err != nil {
			return fmt.Errorf("%w: competitor %d: %v", ErrInvalid, i+1, err)
		}
	}
	return nil
}

func (s *Site) normalize() error {
	raw := strings.TrimSpace(s.Domain)
	if raw == "" {
		return fmt.Errorf("site %q has no domain", s.Name)
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	domain, err := analyzer.ParseDomain(raw)
	if err != nil {
		return err
	}
	s.Domain = domain
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		s.Name = NameFromDomain(domain)
	}
	return nil
}

// NameFromDomain derives a display name from the first label of domain.
func NameFromDomain(domain string) string {
	name, _, _ := strings.Cut(domain, ".")
	return name
}
