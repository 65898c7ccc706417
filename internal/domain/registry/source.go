package registry

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("source not found")
	ErrInvalidSource = errors.New("invalid source")
)

// DefaultType is the only source type the engine runs
const DefaultType = "music"

// Source is a persisted script plus its place in the fallback order
type Source struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Script    string    `json:"script,omitempty"`
	Enabled   bool      `json:"enabled"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`
}

// CreateInput describes a new source
type CreateInput struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Script   string `json:"script"`
	Enabled  *bool  `json:"enabled"`
	Priority int    `json:"priority"`
}

// UpdateInput changes only the fields that are set
type UpdateInput struct {
	Name     *string `json:"name"`
	Script   *string `json:"script"`
	Enabled  *bool   `json:"enabled"`
	Priority *int    `json:"priority"`
}
