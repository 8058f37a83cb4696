package models

import "time"

const (
	IcdVersion10 = "10"
	IcdVersion11 = "11"
)

// IcdCode is a cached terminology entry, unique per (code, version).
// Release is the upstream release tag for version 11 entries ("2024-01").
type IcdCode struct {
	Code          string
	Title         string
	Version       string
	Release       string
	LastFetchedAt time.Time
}
