// Package tagger classifies document text against a configured set of
// advocacy topics by whole-word keyword matching.
package tagger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/osmkhan/lda-scraper/pkg/lda/internalerr"
)

// Tagger matches text against compiled per-category keyword patterns.
type Tagger struct {
	topics   map[string][]string
	patterns map[string]*regexp.Regexp
}

// New compiles one case-insensitive, word-boundary alternation per category.
// Keywords are treated as literals; regex metacharacters are escaped.
func New(topics map[string][]string) (*Tagger, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: no advocacy topics configured", internalerr.ErrInvalidConfig)
	}

	patterns := make(map[string]*regexp.Regexp, len(topics))
	for category, keywords := range topics {
		if len(keywords) == 0 {
			return nil, fmt.Errorf("%w: category %q has no keywords", internalerr.ErrInvalidConfig, category)
		}
		alts := make([]string, len(keywords))
		for i, kw := range keywords {
			alts[i] = `\b` + regexp.QuoteMeta(kw) + `\b`
		}
		p, err := regexp.Compile(`(?i)` + strings.Join(alts, "|"))
		if err != nil {
			return nil, fmt.Errorf("compile pattern for %q: %w", category, err)
		}
		patterns[category] = p
	}

	return &Tagger{topics: topics, patterns: patterns}, nil
}

// Score counts non-overlapping whole-word keyword matches per category.
// Categories below minMentions are omitted.
func (t *Tagger) Score(text string, minMentions int) map[string]int {
	if text == "" {
		return map[string]int{}
	}
	if minMentions < 1 {
		minMentions = 1
	}

	scores := make(map[string]int)
	for category, pattern := range t.patterns {
		count := len(pattern.FindAllStringIndex(text, -1))
		if count >= minMentions {
			scores[category] = count
		}
	}
	return scores
}

// PageMentions records how often a category's keywords appear on one page.
type PageMentions struct {
	Page  int
	Count int
}

// TagDetail aggregates a category's mentions across a document.
type TagDetail struct {
	TotalMentions int
	Pages         []PageMentions
	PageCount     int
}

// TagDocument scores the concatenated full text against minMentions, then
// re-scans each page to build a page-level distribution for the categories
// that passed. The per-page scan uses the same compiled patterns, so both
// passes share match semantics.
func (t *Tagger) TagDocument(pages map[int]string, minMentions int) map[string]TagDetail {
	overall := t.Score(FullText(pages), minMentions)

	details := make(map[string]TagDetail, len(overall))
	for category, total := range overall {
		pattern := t.patterns[category]

		var mentions []PageMentions
		for _, page := range sortedPages(pages) {
			if n := len(pattern.FindAllStringIndex(pages[page], -1)); n > 0 {
				mentions = append(mentions, PageMentions{Page: page, Count: n})
			}
		}

		details[category] = TagDetail{
			TotalMentions: total,
			Pages:         mentions,
			PageCount:     len(mentions),
		}
	}
	return details
}

// Match is a single keyword occurrence with surrounding context.
type Match struct {
	Keyword string
	Offset  int
	Context string
}

// FindMatches returns every occurrence of the category's keywords in text,
// each with up to 50 characters of context on either side.
func (t *Tagger) FindMatches(text, category string) []Match {
	pattern, ok := t.patterns[category]
	if !ok {
		return nil
	}

	var matches []Match
	for _, loc := range pattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		ctxStart := start - 50
		if ctxStart < 0 {
			ctxStart = 0
		}
		ctxEnd := end + 50
		if ctxEnd > len(text) {
			ctxEnd = len(text)
		}
		matches = append(matches, Match{
			Keyword: text[start:end],
			Offset:  start,
			Context: strings.TrimSpace(text[ctxStart:ctxEnd]),
		})
	}
	return matches
}

// Categories lists the configured category names in sorted order.
func (t *Tagger) Categories() []string {
	names := make([]string, 0, len(t.topics))
	for name := range t.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keywords returns the configured keywords for a category.
func (t *Tagger) Keywords(category string) []string {
	return t.topics[category]
}

// Summary renders tag details as a human-readable report, categories
// ordered by total mentions.
func Summary(details map[string]TagDetail) string {
	if len(details) == 0 {
		return "No advocacy topics detected."
	}

	type entry struct {
		category string
		detail   TagDetail
	}
	entries := make([]entry, 0, len(details))
	for category, detail := range details {
		entries = append(entries, entry{category, detail})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].detail.TotalMentions == entries[j].detail.TotalMentions {
			return entries[i].category < entries[j].category
		}
		return entries[i].detail.TotalMentions > entries[j].detail.TotalMentions
	})

	var b strings.Builder
	b.WriteString("Detected advocacy topics:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n  %s: %d mentions across %d pages",
			e.category, e.detail.TotalMentions, e.detail.PageCount)
	}
	return b.String()
}

// FullText joins page texts in page order with single spaces.
func FullText(pages map[int]string) string {
	sorted := sortedPages(pages)
	parts := make([]string, 0, len(sorted))
	for _, page := range sorted {
		parts = append(parts, pages[page])
	}
	return strings.Join(parts, " ")
}

func sortedPages(pages map[int]string) []int {
	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}
