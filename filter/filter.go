package filter

import (
	"fmt"
	"regexp"
	"unicode"

	"github.com/scipunch/backlog/config"
	"github.com/scipunch/backlog/fetcher/types"
)

// FilterPipeline applies a series of named filters to articles
type FilterPipeline struct {
	filters map[string]*CompiledFilter
	apply   []string
}

// CompiledFilter contains compiled regex patterns for efficient matching
type CompiledFilter struct {
	config          config.Filter
	excludePatterns []*regexp.Regexp
}

// NewFilterPipeline compiles the named filters. apply lists the filters run
// by Apply, in order.
func NewFilterPipeline(filtersConfig map[string]config.Filter, apply []string) (*FilterPipeline, error) {
	compiled := make(map[string]*CompiledFilter)

	for name, filterCfg := range filtersConfig {
		cf := &CompiledFilter{
			config:          filterCfg,
			excludePatterns: make([]*regexp.Regexp, 0, len(filterCfg.ExcludePatterns)),
		}

		// Compile regex patterns
		for _, pattern := range filterCfg.ExcludePatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid exclude pattern %q in filter '%s' with %w", pattern, name, err)
			}
			cf.excludePatterns = append(cf.excludePatterns, re)
		}

		compiled[name] = cf
	}

	for _, name := range apply {
		if _, ok := compiled[name]; !ok {
			return nil, fmt.Errorf("filter not defined: %s", name)
		}
	}

	return &FilterPipeline{filters: compiled, apply: apply}, nil
}

// Dropped is an article removed by a filter
type Dropped struct {
	Article types.Article
	Reason  string
}

// Apply splits articles into the ones passing the configured filters and the
// dropped ones. Order is preserved.
func (fp *FilterPipeline) Apply(articles []types.Article) ([]types.Article, []Dropped) {
	if fp == nil || len(fp.apply) == 0 {
		return articles, nil
	}

	kept := make([]types.Article, 0, len(articles))
	var dropped []Dropped
	for _, a := range articles {
		if ok, reason := fp.ShouldInclude(a, fp.apply); !ok {
			dropped = append(dropped, Dropped{Article: a, Reason: reason})
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}

// ShouldInclude returns true if the article passes all filters in the pipeline
// filterNames is a list of filter names to apply in order
func (fp *FilterPipeline) ShouldInclude(article types.Article, filterNames []string) (bool, string) {
	if len(filterNames) == 0 {
		return true, "" // No filters = include everything
	}

	for _, filterName := range filterNames {
		filter, exists := fp.filters[filterName]
		if !exists {
			continue
		}

		if shouldInclude, reason := fp.applyFilter(article, filter, filterName); !shouldInclude {
			return false, reason
		}
	}

	return true, ""
}

// applyFilter applies a single filter to an article
func (fp *FilterPipeline) applyFilter(article types.Article, filter *CompiledFilter, filterName string) (bool, string) {
	// Get the text to analyze (title + description)
	text := article.Name + " " + article.Description

	// 1. Check minimum length
	if filter.config.MinLength > 0 && len(text) < filter.config.MinLength {
		return false, filterName + ":min_length"
	}

	// 2. Check minimum word count
	if filter.config.MinWords > 0 {
		wordCount := countWords(text)
		if wordCount < filter.config.MinWords {
			return false, filterName + ":min_words"
		}
	}

	// 3. Check exclude patterns
	for i, pattern := range filter.excludePatterns {
		if pattern.MatchString(text) {
			return false, filterName + ":exclude_pattern[" + filter.config.ExcludePatterns[i] + "]"
		}
	}

	// 4. Check image requirement
	if filter.config.RequireImage && (article.Image == nil || *article.Image == "") {
		return false, filterName + ":require_image"
	}

	return true, ""
}

// countWords counts the number of words in text
func countWords(text string) int {
	words := 0
	inWord := false

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inWord {
				words++
				inWord = true
			}
		} else {
			inWord = false
		}
	}

	return words
}
