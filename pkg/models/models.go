package models

import (
	"fmt"
	"strings"
	"time"
)

// AttributeKind identifies how an element's value is read
type AttributeKind int

const (
	AttributeText  AttributeKind = iota // Trimmed text content
	AttributeHTML                       // Inner HTML
	AttributeNamed                      // A named DOM attribute such as href or src
)

// Attribute is the resolved form of a selector's `attribute` setting
type Attribute struct {
	Kind AttributeKind
	Name string // Only set for AttributeNamed
}

// TextAttribute is the default attribute used when none is configured
var TextAttribute = Attribute{Kind: AttributeText}

// ParseAttribute resolves a configured attribute string once, at config load time.
// An empty string means text.
func ParseAttribute(raw string) Attribute {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "", "text", "textcontent", "innertext":
		return Attribute{Kind: AttributeText}
	case "html", "innerhtml":
		return Attribute{Kind: AttributeHTML}
	}
	return Attribute{Kind: AttributeNamed, Name: trimmed}
}

// String implements fmt.Stringer for logging
func (a Attribute) String() string {
	switch a.Kind {
	case AttributeText:
		return "text"
	case AttributeHTML:
		return "html"
	case AttributeNamed:
		return a.Name
	}
	return fmt.Sprintf("attribute(%d)", a.Kind)
}

// MarshalText lets yaml and json encode the attribute as its configured string
func (a Attribute) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText resolves the attribute from its configured string
func (a *Attribute) UnmarshalText(text []byte) error {
	*a = ParseAttribute(string(text))
	return nil
}

// Record is one extracted row: field name to value, nil when the field could not be resolved
type Record map[string]*string

// Filled reports whether at least one field carries a value
func (r Record) Filled() bool {
	for _, v := range r {
		if v != nil {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy; value pointers are shared since values are never mutated in place
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// Progress is a snapshot of a run's advancement
type Progress struct {
	Current   int `json:"current"`
	Total     int `json:"total"`
	Extracted int `json:"extracted"`
	Errors    int `json:"errors"`
}

// Session is a point-in-time snapshot of one crawl run as seen by readers
type Session struct {
	ID        string        `json:"id"`
	JobKey    string        `json:"job_key,omitempty"`
	TargetURL string        `json:"target_url,omitempty"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Progress  Progress      `json:"progress"`
	Results   []Record      `json:"results"`
	Errors    []string      `json:"errors"`
}

// Clone deep-copies the session so readers never share slices with the store
func (s Session) Clone() Session {
	out := s
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	out.Results = make([]Record, len(s.Results))
	for i, r := range s.Results {
		out.Results[i] = r.Clone()
	}
	out.Errors = append([]string(nil), s.Errors...)
	return out
}
