package process

import (
	"errors"
	"testing"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

func rec(kv ...string) models.Record {
	r := models.Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i]] = models.StringPtr(kv[i+1])
	}
	return r
}

func TestDedupe_KeyOrderIgnored(t *testing.T) {
	first := models.Record{}
	first["a"] = models.StringPtr("1")
	first["b"] = models.StringPtr("2")
	second := models.Record{}
	second["b"] = models.StringPtr("2")
	second["a"] = models.StringPtr("1")

	out := Dedupe([]models.Record{first, second, rec("a", "1", "b", "3")})
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if *out[1]["b"] != "3" {
		t.Errorf("expected second survivor b=3, got %q", *out[1]["b"])
	}
}

func TestDedupe_NullDistinctFromEmpty(t *testing.T) {
	withNil := models.Record{"a": nil}
	withEmpty := rec("a", "")

	out := Dedupe([]models.Record{withNil, withEmpty, {"a": nil}})
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0]["a"] != nil {
		t.Errorf("expected first survivor to keep nil value")
	}
}

func TestDedupe_StableOrder(t *testing.T) {
	in := []models.Record{rec("x", "c"), rec("x", "a"), rec("x", "c"), rec("x", "b"), rec("x", "a")}
	out := Dedupe(in)

	want := []string{"c", "a", "b"}
	if len(out) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(out))
	}
	for i, w := range want {
		if got := *out[i]["x"]; got != w {
			t.Errorf("record %d: expected %q, got %q", i, w, got)
		}
	}
}

func TestDedupe_Empty(t *testing.T) {
	if out := Dedupe(nil); len(out) != 0 {
		t.Errorf("expected no records, got %d", len(out))
	}
}

func TestApplyFilters(t *testing.T) {
	records := []models.Record{
		rec("idx", "r0", "title", "Foo widget", "note", "plain"),
		rec("idx", "r1", "title", "Other", "note", "has FOO inside"),
		rec("idx", "r2", "title", "Nothing"),
		rec("idx", "r3", "title", "foo and BAR"),
		{"idx": models.StringPtr("r4"), "title": nil, "note": models.StringPtr("bar only")},
	}

	tests := []struct {
		name string
		set  config.FilterSet
		want []int
	}{
		{"no patterns keeps all", config.FilterSet{}, []int{0, 1, 2, 3, 4}},
		{"include any field, case-insensitive", config.FilterSet{Include: "foo"}, []int{0, 1, 3}},
		{"exclude any field", config.FilterSet{Exclude: "bar"}, []int{0, 1, 2}},
		{"include and exclude", config.FilterSet{Include: "foo", Exclude: "bar"}, []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyFilters(records, tt.set)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d records, got %d", len(tt.want), len(got))
			}
			for i, idx := range tt.want {
				if *got[i]["idx"] != *records[idx]["idx"] {
					t.Errorf("record %d: expected %s, got %s", i, *records[idx]["idx"], *got[i]["idx"])
				}
			}
		})
	}
}

func TestApplyFilters_InvalidPattern(t *testing.T) {
	for _, set := range []config.FilterSet{{Include: "("}, {Exclude: "[a-"}} {
		_, err := ApplyFilters([]models.Record{rec("a", "b")}, set)
		if err == nil {
			t.Fatalf("expected error for %+v", set)
		}
		if !errors.Is(err, utils.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	}
}

func TestFilter_NilFilterKeepsAll(t *testing.T) {
	var f *Filter
	in := []models.Record{rec("a", "1")}
	if out := f.Apply(in); len(out) != 1 {
		t.Errorf("expected nil filter to keep records, got %d", len(out))
	}
}
