package taxonomy

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

// Seed is the YAML layout for loading a vocabulary:
//
//	categories:
//	  - name: Events
//	    subcategories:
//	      - name: Civic
//	        terms:
//	          - name: town hall
//	            synonyms: [city hall meeting]
type Seed struct {
	Categories []SeedCategory `yaml:"categories"`
}

type SeedCategory struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Synonyms      []string          `yaml:"synonyms"`
	Subcategories []SeedSubcategory `yaml:"subcategories"`
}

type SeedSubcategory struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Synonyms    []string   `yaml:"synonyms"`
	Terms       []SeedTerm `yaml:"terms"`
}

type SeedTerm struct {
	Name        string     `yaml:"name"`
	Specific    string     `yaml:"specific"`
	Description string     `yaml:"description"`
	Synonyms    []string   `yaml:"synonyms"`
	Children    []SeedTerm `yaml:"children"`
}

func ParseSeed(r io.Reader) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return &s, nil
		}
		return nil, fmt.Errorf("parse taxonomy seed: %w", err)
	}
	return &s, nil
}

func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSeed(f)
}

// Rows flattens the seed into term and synonym rows with stable ids and
// parent links. The result is validated by building a Tree from it.
func (s *Seed) Rows() ([]*types.TaxonomyTerm, []*types.TermSynonym, error) {
	var terms []*types.TaxonomyTerm
	var syns []*types.TermSynonym

	add := func(primary, sub, name, specific, desc string, parent *uuid.UUID, synonyms []string) (*types.TaxonomyTerm, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("taxonomy seed: empty name under %q", strings.TrimSpace(primary+" "+sub))
		}
		t := &types.TaxonomyTerm{
			ID:              types.TermID(primary, sub, name),
			ParentID:        parent,
			PrimaryCategory: strings.TrimSpace(primary),
			Subcategory:     strings.TrimSpace(sub),
			Term:            name,
			Description:     strings.TrimSpace(desc),
		}
		if sp := strings.TrimSpace(specific); sp != "" {
			t.SpecificTerm = &sp
		}
		terms = append(terms, t)
		for _, syn := range synonyms {
			if syn = strings.TrimSpace(syn); syn != "" {
				syns = append(syns, &types.TermSynonym{
					ID:      uuid.NewSHA1(t.ID, []byte(syn)),
					TermID:  t.ID,
					Synonym: syn,
				})
			}
		}
		return t, nil
	}

	var addTerm func(primary, sub string, parent *uuid.UUID, st SeedTerm) error
	addTerm = func(primary, sub string, parent *uuid.UUID, st SeedTerm) error {
		t, err := add(primary, sub, st.Name, st.Specific, st.Description, parent, st.Synonyms)
		if err != nil {
			return err
		}
		for _, child := range st.Children {
			id := t.ID
			if err := addTerm(primary, sub, &id, child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, c := range s.Categories {
		root, err := add(c.Name, "", c.Name, "", c.Description, nil, c.Synonyms)
		if err != nil {
			return nil, nil, err
		}
		for _, sc := range c.Subcategories {
			rootID := root.ID
			sub, err := add(c.Name, sc.Name, sc.Name, "", sc.Description, &rootID, sc.Synonyms)
			if err != nil {
				return nil, nil, err
			}
			for _, st := range sc.Terms {
				subID := sub.ID
				if err := addTerm(c.Name, sc.Name, &subID, st); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	if _, err := Build(terms, syns); err != nil {
		return nil, nil, err
	}
	return terms, syns, nil
}
