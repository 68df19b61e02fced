package models

// ResolveRequest is the query for the fuzzy lookup endpoint.
type ResolveRequest struct {
	Query string `query:"q" validate:"required,min=2,max=128"`
}

// ResolveResponse is a fuzzy lookup result.
type ResolveResponse struct {
	Query string `json:"query"`
	Found bool   `json:"found"`
	Score int    `json:"score"`
	Item  *Item  `json:"item,omitempty"`
}

// ItemAliasRequest adds an alias to an item.
type ItemAliasRequest struct {
	ItemID string `json:"item_id" validate:"required,max=64"`
	Alias  string `json:"alias" validate:"required,min=2,max=128"`
}

// RemoveItemAliasRequest removes an item alias.
type RemoveItemAliasRequest struct {
	Alias string `json:"alias" validate:"required,max=128"`
}

// WordAliasRequest adds a word substitution used before fuzzy matching.
type WordAliasRequest struct {
	Word  string `json:"word" validate:"required,min=2,max=64"`
	Alias string `json:"alias" validate:"required,min=2,max=64"`
}

// CheckpointResponse reports the last persisted statistics day.
type CheckpointResponse struct {
	Checkpoint string `json:"checkpoint,omitempty"`
	Empty      bool   `json:"empty"`
	Records    int64  `json:"records"`
}
