package manifest

import (
	"sort"
	"strings"
)

// categoryTypes maps export sections onto item types. Sections not listed
// here do not classify anything.
var categoryTypes = map[string]string{
	"ExportWarframes":     "Warframe",
	"ExportWeapons":       "Weapon",
	"ExportUpgrades":      "Mod",
	"ExportModSet":        "Mod",
	"ExportRelicArcane":   "Arcane",
	"ExportSentinels":     "Sentinel",
	"ExportResources":     "Resource",
	"ExportCustoms":       "Skin",
	"ExportFlavour":       "Cosmetic",
	"ExportGear":          "Gear",
	"ExportKeys":          "Key",
	"ExportDrones":        "Drone",
	"ExportSortieRewards": "Reward",
}

// Classifier assigns an item type to catalog names using the manifest.
type Classifier struct {
	byName map[string]string
}

// NewClassifier indexes the manifest by lower-cased name. When a name is
// listed in more than one section the first section in sorted order wins so
// classification is stable across runs.
func NewClassifier(m Manifest) *Classifier {
	categories := make([]string, 0, len(m))
	for c := range m {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	byName := make(map[string]string)
	for _, category := range categories {
		typ, ok := categoryTypes[category]
		if !ok {
			continue
		}
		for _, name := range m[category] {
			key := strings.ToLower(strings.TrimSpace(name))
			if _, seen := byName[key]; !seen {
				byName[key] = typ
			}
		}
	}
	return &Classifier{byName: byName}
}

// Len reports the number of indexed names.
func (c *Classifier) Len() int { return len(c.byName) }

// Classify returns the type for name, or "" when nothing matches. Parts and
// sets resolve through their parent: "Volt Prime Neuroptics" falls back to
// "Volt Prime" and then "Volt".
func (c *Classifier) Classify(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasSuffix(lower, " set"):
		return "Set"
	case strings.HasSuffix(lower, " relic"):
		return "Relic"
	}

	words := strings.Fields(lower)
	for n := len(words); n > 0; n-- {
		if typ, ok := c.byName[strings.Join(words[:n], " ")]; ok {
			return typ
		}
	}
	return ""
}
