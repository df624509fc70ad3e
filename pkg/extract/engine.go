// Package extract turns a loaded page and a selector set into records.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/page"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Engine evaluates selectors against pages. It is safe for concurrent use.
type Engine struct {
	log *logrus.Entry

	mu      sync.Mutex
	regexes map[string]compiledRegex // pattern -> compile result
}

type compiledRegex struct {
	re  *regexp.Regexp
	err error
}

// SelectorTestResult is the outcome of evaluating one selector against a page
type SelectorTestResult struct {
	Success bool   `json:"success"`
	Preview string `json:"preview,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewEngine creates an Engine
func NewEngine(log *logrus.Entry) *Engine {
	return &Engine{
		log:     log.WithField("component", "extract"),
		regexes: make(map[string]compiledRegex),
	}
}

// compile caches compiled selector regexes, including failures
func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.regexes[pattern]; ok {
		return c.re, c.err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		err = fmt.Errorf("%w: pattern '%s': %v", utils.ErrRegex, pattern, err)
	}
	e.regexes[pattern] = compiledRegex{re: re, err: err}
	return re, err
}

// Extract evaluates selectors against p. Records from pure-regex selectors come first,
// followed by element-bound records in index order. Broken queries and patterns are
// logged and leave the affected field nil; they never abort extraction.
func (e *Engine) Extract(ctx context.Context, p page.Page, selectors []config.Selector) []models.Record {
	var pureRegex, bound []config.Selector
	for _, s := range selectors {
		switch {
		case s.IsElementBound():
			bound = append(bound, s)
		case s.IsPureRegex():
			pureRegex = append(pureRegex, s)
		}
	}

	records := e.extractPureRegex(ctx, p, pureRegex)
	return append(records, e.extractBound(ctx, p, bound)...)
}

// extractPureRegex emits one single-field record per match of each selector over the page text
func (e *Engine) extractPureRegex(ctx context.Context, p page.Page, selectors []config.Selector) []models.Record {
	if len(selectors) == 0 {
		return nil
	}
	text, err := p.Text(ctx)
	if err != nil {
		e.log.Warnf("Reading page text for regex selectors failed: %v", err)
		return nil
	}

	var records []models.Record
	for _, s := range selectors {
		re, err := e.compile(s.Regex)
		if err != nil {
			e.log.WithField("selector", s.Name).Warn(err)
			continue
		}
		for _, v := range utils.AllGroupsOrMatches(re, text) {
			records = append(records, models.Record{s.Name: models.StringPtr(v)})
		}
	}
	return records
}

// extractBound builds records from element-bound selectors
func (e *Engine) extractBound(ctx context.Context, p page.Page, selectors []config.Selector) []models.Record {
	if len(selectors) == 0 {
		return nil
	}

	matches := make([][]page.Element, len(selectors))
	maxCount := 0
	for i, s := range selectors {
		matches[i] = e.resolve(ctx, p, s)
		if len(matches[i]) > maxCount {
			maxCount = len(matches[i])
		}
	}

	if maxCount <= 1 {
		record := make(models.Record, len(selectors))
		for i, s := range selectors {
			record[s.Name] = e.valueAt(ctx, s, matches[i], 0)
		}
		if !record.Filled() {
			return nil
		}
		return []models.Record{record}
	}

	records := make([]models.Record, 0, maxCount)
	for index := 0; index < maxCount; index++ {
		record := make(models.Record, len(selectors))
		discarded := false
		for i, s := range selectors {
			v := e.valueAt(ctx, s, matches[i], index)
			if v == nil && s.Required {
				e.log.WithFields(logrus.Fields{"selector": s.Name, "index": index}).
					Debugf("Discarding candidate: %v", utils.ErrRequiredFieldMissing)
				discarded = true
				break
			}
			record[s.Name] = v
		}
		if discarded || !record.Filled() {
			continue
		}
		records = append(records, record)
	}
	return records
}

// resolve returns a selector's match set; the CSS query wins when both queries are set
func (e *Engine) resolve(ctx context.Context, p page.Page, s config.Selector) []page.Element {
	var (
		elements []page.Element
		err      error
	)
	if s.CSSQuery != "" {
		elements, err = p.Query(ctx, s.CSSQuery)
	} else {
		elements, err = p.QueryPath(ctx, s.PathQuery)
	}
	if err != nil {
		e.log.WithField("selector", s.Name).Warnf("Query failed: %v", err)
		return nil
	}
	return elements
}

// valueAt reads the selector's value from the element at index, nil when missing
func (e *Engine) valueAt(ctx context.Context, s config.Selector, elements []page.Element, index int) *string {
	if index >= len(elements) {
		return nil
	}
	v, err := e.readValue(ctx, s, elements[index])
	if err != nil {
		e.log.WithFields(logrus.Fields{"selector": s.Name, "index": index}).Debugf("No value: %v", err)
		return nil
	}
	return v
}

// readValue reads an element per the selector's attribute, then applies the selector regex.
// A regex that fails to compile or does not match keeps the raw value. An empty value,
// raw or derived, is missing.
func (e *Engine) readValue(ctx context.Context, s config.Selector, el page.Element) (*string, error) {
	raw, ok, err := el.Value(ctx, s.Attribute)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: attribute '%s' not present", utils.ErrElementResolution, s.Attribute)
	}
	if s.Attribute.Kind == models.AttributeText {
		raw = strings.TrimSpace(raw)
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: empty value", utils.ErrElementResolution)
	}

	if s.Regex == "" {
		return &raw, nil
	}
	re, err := e.compile(s.Regex)
	if err != nil {
		e.log.WithField("selector", s.Name).Warnf("%v; keeping raw value", err)
		return &raw, nil
	}
	derived, matched := utils.FirstGroupOrMatch(re, raw)
	if !matched {
		return &raw, nil
	}
	if derived == "" {
		return nil, fmt.Errorf("%w: pattern '%s' matched an empty value", utils.ErrElementResolution, s.Regex)
	}
	return &derived, nil
}

// TestSelector evaluates a single selector with single-item semantics and reports
// the first resolved value, or why none resolved.
func (e *Engine) TestSelector(ctx context.Context, p page.Page, s config.Selector) SelectorTestResult {
	if s.IsPureRegex() {
		re, err := e.compile(s.Regex)
		if err != nil {
			return SelectorTestResult{Error: err.Error()}
		}
		text, err := p.Text(ctx)
		if err != nil {
			return SelectorTestResult{Error: err.Error()}
		}
		if v, ok := utils.FirstGroupOrMatch(re, text); ok {
			return SelectorTestResult{Success: true, Preview: v}
		}
		return SelectorTestResult{Error: "pattern did not match the page text"}
	}
	if !s.IsElementBound() {
		return SelectorTestResult{Error: "selector has no css_query, path_query or regex"}
	}

	var (
		elements []page.Element
		err      error
	)
	if s.CSSQuery != "" {
		elements, err = p.Query(ctx, s.CSSQuery)
	} else {
		elements, err = p.QueryPath(ctx, s.PathQuery)
	}
	if err != nil {
		return SelectorTestResult{Error: err.Error()}
	}
	if len(elements) == 0 {
		return SelectorTestResult{Error: "no elements matched"}
	}
	v, err := e.readValue(ctx, s, elements[0])
	if err != nil {
		return SelectorTestResult{Error: err.Error()}
	}
	return SelectorTestResult{Success: true, Preview: *v}
}
