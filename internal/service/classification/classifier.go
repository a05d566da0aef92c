// Package classification groups creatures into mythological families and subtypes.
package classification

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/lorekeeper/internal/models"
)

// Fallback labels.
const (
	UnknownFamily     = "Unknown"
	DefaultSubtype    = "Default"
	UnspecifiedOrigin = "Non spécifiée"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Rule maps a label to the keywords that select it.
type Rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Taxonomy is the ordered keyword table used for classification.
type Taxonomy struct {
	Families   []Rule `yaml:"families"`
	Geographic []Rule `yaml:"geographic"`
	Subtypes   []Rule `yaml:"subtypes"`
}

// ParseTaxonomy decodes a YAML taxonomy.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if len(t.Families) == 0 {
		return nil, fmt.Errorf("taxonomy has no families")
	}
	for _, group := range [][]Rule{t.Families, t.Geographic, t.Subtypes} {
		for i := range group {
			if group[i].Name == "" {
				return nil, fmt.Errorf("taxonomy rule %d has no name", i)
			}
			for j, kw := range group[i].Keywords {
				group[i].Keywords[j] = strings.ToLower(kw)
			}
		}
	}
	return &t, nil
}

// DefaultTaxonomy returns the built-in taxonomy.
func DefaultTaxonomy() *Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomy)
	if err != nil {
		panic(err)
	}
	return t
}

// ClassifiedCreature is one creature with its family and subtype.
type ClassifiedCreature struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Origin      string  `json:"origin"`
	Family      string  `json:"family"`
	Subtype     string  `json:"subtype"`
	LegendScore float64 `json:"legendScore"`
}

// Families is family -> subtype -> creature names.
type Families map[string]map[string][]string

// Result is a full classification run.
type Result struct {
	Families Families             `json:"families"`
	Details  []ClassifiedCreature `json:"-"`
}

// Stats summarizes a classification.
type Stats struct {
	TotalFamilies      int            `json:"totalFamilies"`
	TotalSubtypes      int            `json:"totalSubtypes"`
	FamilyDistribution map[string]int `json:"familyDistribution"`
}

// Classifier applies a taxonomy.
type Classifier struct {
	taxonomy *Taxonomy
}

// NewClassifier creates a classifier. A nil taxonomy selects the built-in one.
func NewClassifier(t *Taxonomy) *Classifier {
	if t == nil {
		t = DefaultTaxonomy()
	}
	return &Classifier{taxonomy: t}
}

// Classify tags a single creature.
func (c *Classifier) Classify(creature models.Creature) ClassifiedCreature {
	out := ClassifiedCreature{
		ID:          creature.ID,
		Name:        creature.Name,
		Origin:      creature.Origin,
		Family:      UnknownFamily,
		Subtype:     DefaultSubtype,
		LegendScore: creature.LegendScore,
	}

	origin := strings.ToLower(strings.TrimSpace(creature.Origin))
	if origin == "" {
		out.Origin = UnspecifiedOrigin
		return out
	}

	text := strings.ToLower(origin + " " + creature.Name)
	if family, ok := match(c.taxonomy.Families, text); ok {
		out.Family = family
	} else if family, ok := match(c.taxonomy.Geographic, origin); ok {
		out.Family = family
	}
	if subtype, ok := match(c.taxonomy.Subtypes, text); ok {
		out.Subtype = subtype
	}
	return out
}

// ClassifyAll builds the family tree for creatures, preserving input order within each subtype.
func (c *Classifier) ClassifyAll(creatures []models.Creature) *Result {
	if len(creatures) == 0 {
		return &Result{
			Families: Families{UnknownFamily: {DefaultSubtype: []string{}}},
			Details:  []ClassifiedCreature{},
		}
	}

	res := &Result{
		Families: Families{},
		Details:  make([]ClassifiedCreature, 0, len(creatures)),
	}
	for _, creature := range creatures {
		cc := c.Classify(creature)
		res.Details = append(res.Details, cc)

		subtypes, ok := res.Families[cc.Family]
		if !ok {
			subtypes = map[string][]string{}
			res.Families[cc.Family] = subtypes
		}
		subtypes[cc.Subtype] = append(subtypes[cc.Subtype], cc.Name)
	}
	return res
}

// Summarize counts families, subtypes and creatures per family.
func Summarize(f Families) Stats {
	stats := Stats{
		TotalFamilies:      len(f),
		FamilyDistribution: make(map[string]int, len(f)),
	}
	for family, subtypes := range f {
		count := 0
		for _, names := range subtypes {
			stats.TotalSubtypes++
			count += len(names)
		}
		stats.FamilyDistribution[family] = count
	}
	return stats
}

func match(rules []Rule, text string) (string, bool) {
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				return r.Name, true
			}
		}
	}
	return "", false
}
