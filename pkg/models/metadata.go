package models

import "time"

// FieldInfo is one dotted field path observed in sampled documents.
// Array members are written as "path[]".
type FieldInfo struct {
	Path  string   `json:"path"`
	Types []string `json:"types"`
}

// CollectionInfo describes a collection and its sampled field paths.
type CollectionInfo struct {
	Name        string      `json:"name"`
	SampledDocs int         `json:"sampledDocs"`
	Fields      []FieldInfo `json:"fields"`
}

// SchemaSummary is the introspected shape of the database.
type SchemaSummary struct {
	Database    string           `json:"database"`
	Collections []CollectionInfo `json:"collections"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// SeedReport lists how many documents were written per collection.
type SeedReport struct {
	Inserted map[string]int `json:"inserted"`
	Skipped  []string       `json:"skipped,omitempty"`
}
