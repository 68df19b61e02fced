package models

// Item is a tradable catalog entry.
type Item struct {
	ID      string   `json:"id"`
	Name    string   `json:"item_name"`
	URLName string   `json:"url_name"`
	Thumb   string   `json:"thumb,omitempty"`
	Type    string   `json:"item_type,omitempty"` // empty until classified
	MaxRank *int     `json:"max_rank,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

// ItemInfo is the per-item metadata side-table collected during aggregation.
type ItemInfo struct {
	ItemID     string   `json:"item_id"`
	Tags       []string `json:"tags"`
	SetItems   []string `json:"set_items"` // only populated for set roots
	ModMaxRank *int     `json:"mod_max_rank"`
	Subtypes   []string `json:"subtypes"`
}

// SetMembership links a part to the set it belongs to.
type SetMembership struct {
	ItemID string
	SetID  string
}

// ItemSubtype is a distinct sub-type label observed for an item.
type ItemSubtype struct {
	ItemID  string
	SubType string
}

// ItemModRank is a distinct mod rank observed for an item.
type ItemModRank struct {
	ItemID  string
	ModRank int
}

// WordAlias maps a noise or variant word onto its canonical word.
type WordAlias struct {
	Word  string `json:"word"`
	Alias string `json:"alias"`
}

// TranslationTable maps historical item names onto current catalog names.
type TranslationTable map[string]string

// Translate returns the current name for name, or name itself.
func (t TranslationTable) Translate(name string) string {
	if v, ok := t[name]; ok && v != "" {
		return v
	}
	return name
}
