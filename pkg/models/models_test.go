package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseAttribute(t *testing.T) {
	tests := []struct {
		raw  string
		want Attribute
	}{
		{"", Attribute{Kind: AttributeText}},
		{"text", Attribute{Kind: AttributeText}},
		{"textContent", Attribute{Kind: AttributeText}},
		{"html", Attribute{Kind: AttributeHTML}},
		{"innerHTML", Attribute{Kind: AttributeHTML}},
		{"href", Attribute{Kind: AttributeNamed, Name: "href"}},
		{" data-ID ", Attribute{Kind: AttributeNamed, Name: "data-ID"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAttribute(tt.raw))
		})
	}
}

func TestAttribute_YAMLAndJSON(t *testing.T) {
	var cfg struct {
		Attribute Attribute `yaml:"attribute" json:"attribute"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("attribute: src\n"), &cfg))
	assert.Equal(t, Attribute{Kind: AttributeNamed, Name: "src"}, cfg.Attribute)

	require.NoError(t, json.Unmarshal([]byte(`{"attribute":"innerHTML"}`), &cfg))
	assert.Equal(t, AttributeHTML, cfg.Attribute.Kind)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attribute":"html"}`, string(data))
}

func TestRecord_Filled(t *testing.T) {
	assert.False(t, Record{}.Filled())
	assert.False(t, Record{"a": nil, "b": nil}.Filled())
	assert.True(t, Record{"a": nil, "b": StringPtr("")}.Filled())
}

func TestSession_CloneIsIndependent(t *testing.T) {
	ended := time.Now().UTC()
	s := Session{
		ID:      "s1",
		Status:  SessionStatusCompleted,
		EndedAt: &ended,
		Results: []Record{{"title": StringPtr("a")}},
		Errors:  []string{"Page 2: boom"},
	}

	c := s.Clone()
	c.Results[0]["title"] = StringPtr("changed")
	c.Errors[0] = "changed"
	*c.EndedAt = ended.Add(time.Hour)

	assert.Equal(t, "a", *s.Results[0]["title"])
	assert.Equal(t, "Page 2: boom", s.Errors[0])
	assert.Equal(t, ended, *s.EndedAt)
}

func TestSession_JSONOmitEmpty(t *testing.T) {
	data, err := json.Marshal(Session{ID: "s1", Status: SessionStatusRunning})
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "ended_at")
	assert.NotContains(t, raw, "job_key")
	assert.Contains(t, raw, `"status":"running"`)
}

func TestRecord_NullDistinctFromEmpty(t *testing.T) {
	data, err := json.Marshal(Record{"a": nil, "b": StringPtr("")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":""}`, string(data))
}
