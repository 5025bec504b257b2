package filter

import (
	"testing"

	"github.com/scipunch/backlog/config"
	"github.com/scipunch/backlog/fetcher/types"
)

func TestFilterPipeline_MinLength(t *testing.T) {
	pipeline, err := NewFilterPipeline(map[string]config.Filter{"short": {MinLength: 40}}, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	tests := []struct {
		name          string
		article       types.Article
		shouldInclude bool
	}{
		{
			name:          "long enough",
			article:       types.Article{Name: "Index tuning", Description: "How to read an execution plan step by step"},
			shouldInclude: true,
		},
		{
			name:          "too short",
			article:       types.Article{Name: "Tip", Description: "short"},
			shouldInclude: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, _ := pipeline.ShouldInclude(tt.article, []string{"short"})
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v", tt.shouldInclude, include)
			}
		})
	}
}

func TestFilterPipeline_MinWords(t *testing.T) {
	pipeline, err := NewFilterPipeline(map[string]config.Filter{"word_count": {MinWords: 6}}, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	tests := []struct {
		name          string
		article       types.Article
		shouldInclude bool
	}{
		{
			name:          "enough words",
			article:       types.Article{Name: "Backup strategies", Description: "full, differential and log backups compared"},
			shouldInclude: true,
		},
		{
			name:          "too few words",
			article:       types.Article{Name: "Tip #1", Description: "short tip"},
			shouldInclude: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, _ := pipeline.ShouldInclude(tt.article, []string{"word_count"})
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v", tt.shouldInclude, include)
			}
		})
	}
}

func TestFilterPipeline_ExcludePatterns(t *testing.T) {
	filters := map[string]config.Filter{
		"promos": {ExcludePatterns: []string{"^(?i)sponsored", `\[ad\]`}},
	}
	pipeline, err := NewFilterPipeline(filters, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	tests := []struct {
		name          string
		article       types.Article
		shouldInclude bool
	}{
		{name: "normal content", article: types.Article{Name: "Query store basics"}, shouldInclude: true},
		{name: "sponsored prefix", article: types.Article{Name: "Sponsored: buy our tool"}, shouldInclude: false},
		{name: "lowercase prefix", article: types.Article{Name: "sponsored webinar"}, shouldInclude: false},
		{name: "ad marker in description", article: types.Article{Name: "Tools", Description: "[ad] now 50% off"}, shouldInclude: false},
		{name: "contains word but not at start", article: types.Article{Name: "Why sponsored posts are everywhere"}, shouldInclude: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, reason := pipeline.ShouldInclude(tt.article, []string{"promos"})
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v (reason: %s)", tt.shouldInclude, include, reason)
			}
		})
	}
}

func TestFilterPipeline_RequireImage(t *testing.T) {
	pipeline, err := NewFilterPipeline(map[string]config.Filter{"images": {RequireImage: true}}, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	img := "https://i.ytimg.com/vi/abc/hqdefault.jpg"
	empty := ""
	tests := []struct {
		name          string
		image         *string
		shouldInclude bool
	}{
		{name: "with image", image: &img, shouldInclude: true},
		{name: "nil image", image: nil, shouldInclude: false},
		{name: "empty image", image: &empty, shouldInclude: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, _ := pipeline.ShouldInclude(types.Article{Name: "Video", Image: tt.image}, []string{"images"})
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v", tt.shouldInclude, include)
			}
		})
	}
}

func TestFilterPipeline_Order(t *testing.T) {
	filters := map[string]config.Filter{
		"length":   {MinLength: 10},
		"words":    {MinWords: 3},
		"patterns": {ExcludePatterns: []string{"^Sponsored"}},
	}
	pipeline, err := NewFilterPipeline(filters, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	article := types.Article{Name: "Sponsored deep dive into page splits", Description: "a long description"}

	include, reason := pipeline.ShouldInclude(article, []string{"length", "words", "patterns"})
	if include {
		t.Errorf("Expected article to be filtered out by patterns, but it passed")
	}
	if reason != "patterns:exclude_pattern[^Sponsored]" {
		t.Errorf("Expected reason to mention pattern filter, got: %s", reason)
	}
}

func TestFilterPipeline_Apply(t *testing.T) {
	pipeline, err := NewFilterPipeline(map[string]config.Filter{"words": {MinWords: 3}}, []string{"words"})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	articles := []types.Article{
		{Name: "one", Link: "https://example.com/1"},
		{Name: "two words here", Link: "https://example.com/2"},
		{Name: "three", Description: "more words now", Link: "https://example.com/3"},
	}

	kept, dropped := pipeline.Apply(articles)
	if len(kept) != 2 || kept[0].Link != "https://example.com/2" || kept[1].Link != "https://example.com/3" {
		t.Errorf("unexpected kept articles: %+v", kept)
	}
	if len(dropped) != 1 || dropped[0].Article.Link != "https://example.com/1" || dropped[0].Reason != "words:min_words" {
		t.Errorf("unexpected dropped articles: %+v", dropped)
	}
}

func TestFilterPipeline_NoFilters(t *testing.T) {
	pipeline, err := NewFilterPipeline(map[string]config.Filter{}, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	article := types.Article{Name: "Any title", Description: "Any content"}

	include, _ := pipeline.ShouldInclude(article, []string{})
	if !include {
		t.Errorf("Expected article to be included when no filters applied")
	}

	kept, dropped := pipeline.Apply([]types.Article{article})
	if len(kept) != 1 || dropped != nil {
		t.Errorf("Expected Apply to keep everything, got kept=%d dropped=%d", len(kept), len(dropped))
	}

	var nilPipeline *FilterPipeline
	kept, _ = nilPipeline.Apply([]types.Article{article})
	if len(kept) != 1 {
		t.Errorf("Expected nil pipeline to keep everything")
	}
}

func TestNewFilterPipeline_Errors(t *testing.T) {
	if _, err := NewFilterPipeline(map[string]config.Filter{"bad": {ExcludePatterns: []string{"("}}}, nil); err == nil {
		t.Error("Expected error for invalid regex")
	}
	if _, err := NewFilterPipeline(map[string]config.Filter{}, []string{"missing"}); err == nil {
		t.Error("Expected error for undefined filter")
	}
}
