// Package process applies post-extraction record processing: include/exclude filtering
// and content deduplication.
package process

import (
	"regexp"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Filter keeps records by case-insensitive include/exclude patterns matched against field values
type Filter struct {
	include *regexp.Regexp // nil when unset
	exclude *regexp.Regexp // nil when unset
}

// NewFilter compiles a FilterSet. Invalid patterns return an error wrapping utils.ErrValidation.
func NewFilter(set config.FilterSet) (*Filter, error) {
	include, err := utils.CompileCaseInsensitive(set.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := utils.CompileCaseInsensitive(set.Exclude)
	if err != nil {
		return nil, err
	}
	return &Filter{include: include, exclude: exclude}, nil
}

// Keep reports whether a record survives the filter.
// Include passes when any non-nil field matches; exclude rejects when any field matches.
func (f *Filter) Keep(r models.Record) bool {
	if f.include != nil && !anyFieldMatches(f.include, r) {
		return false
	}
	if f.exclude != nil && anyFieldMatches(f.exclude, r) {
		return false
	}
	return true
}

// Apply returns the surviving records in their original order
func (f *Filter) Apply(records []models.Record) []models.Record {
	if f == nil || (f.include == nil && f.exclude == nil) {
		return records
	}
	kept := make([]models.Record, 0, len(records))
	for _, r := range records {
		if f.Keep(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

// ApplyFilters compiles set and applies it to records in one call
func ApplyFilters(records []models.Record, set config.FilterSet) ([]models.Record, error) {
	f, err := NewFilter(set)
	if err != nil {
		return nil, err
	}
	return f.Apply(records), nil
}

func anyFieldMatches(re *regexp.Regexp, r models.Record) bool {
	for _, v := range r {
		if v != nil && re.MatchString(*v) {
			return true
		}
	}
	return false
}
