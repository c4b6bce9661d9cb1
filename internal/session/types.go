package session

import (
	"errors"
	"maps"
	"time"
)

var ErrNotFound = errors.New("session not found")

type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

type Session struct {
	ID        string         `json:"id"`
	Status    Status         `json:"status"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	ClosedAt  time.Time      `json:"closed_at,omitzero"`
}

func (s *Session) clone() *Session {
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return &c
}
