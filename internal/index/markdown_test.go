package index

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeConcept(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Machine Learning", "machine-learning"},
		{"  spaced  ", "spaced"},
		{"snake_case_name", "snake-case-name"},
		{"a/b/c", "a-b-c"},
		{"too -- many---hyphens", "too-many-hyphens"},
		{"-leading-and-trailing-", "leading-and-trailing"},
		{"MCP", "mcp"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeConcept(tt.in); got != tt.want {
			t.Errorf("NormalizeConcept(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Auth Design Notes", "auth-design-notes"},
		{"What's next?", "whats-next"},
		{"snake_case  title", "snake-case-title"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractConcepts(t *testing.T) {
	got := ExtractConcepts("uses [[JWT]] and [[Redis Cache]] but not `[[inline code]]`, again [[jwt]]")
	want := []string{"jwt", "redis-cache", "jwt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractConcepts = %v, want %v", got, want)
	}
	if got := ExtractConcepts("[[]] and [[ - ]]"); len(got) != 0 {
		t.Errorf("empty links produced %v", got)
	}
}

func TestSplitFrontmatter(t *testing.T) {
	fm, body := splitFrontmatter([]byte("---\ntitle: x\n---\n\nbody text\n"))
	if string(fm) != "title: x\n" {
		t.Errorf("fm = %q", fm)
	}
	if string(body) != "body text\n" {
		t.Errorf("body = %q", body)
	}

	fm, body = splitFrontmatter([]byte("no frontmatter\n---\n"))
	if fm != nil || string(body) != "no frontmatter\n---\n" {
		t.Errorf("plain doc split as fm=%q body=%q", fm, body)
	}

	fm, body = splitFrontmatter([]byte("---\ntitle: unterminated\n"))
	if fm != nil || string(body) != "---\ntitle: unterminated\n" {
		t.Errorf("unterminated split as fm=%q body=%q", fm, body)
	}

	fm, _ = splitFrontmatter([]byte("---\r\ntitle: crlf\r\n---\r\nbody"))
	if string(fm) != "title: crlf\r\n" {
		t.Errorf("crlf fm = %q", fm)
	}
}

func TestParseFrontmatterAndConcepts(t *testing.T) {
	src := `---
title: Auth Design
created: 2025-01-15
tier: workflow
tags: [security, Access Control]
---
# Ignored Heading

We picked [[JWT]] over sessions. See [[Token Rotation]].

- rotation handled by [[token_rotation]]

` + "```go\n// [[not-a-concept]]\n```\n"

	doc := Parse([]byte(src), "fallback")
	if doc.Title != "Auth Design" {
		t.Errorf("Title = %q", doc.Title)
	}
	if want := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC); !doc.Created.Equal(want) {
		t.Errorf("Created = %v, want %v", doc.Created, want)
	}
	if doc.Tier != "workflow" {
		t.Errorf("Tier = %q", doc.Tier)
	}
	want := map[string]int{
		"jwt":            1,
		"token-rotation": 2,
		"security":       1,
		"access-control": 1,
	}
	if !reflect.DeepEqual(doc.Concepts, want) {
		t.Errorf("Concepts = %v, want %v", doc.Concepts, want)
	}
}

func TestParseTitleFallbacks(t *testing.T) {
	doc := Parse([]byte("intro line\n\n## About [[Redis]]\n\ntext"), "file-name")
	if doc.Title != "About Redis" {
		t.Errorf("heading title = %q", doc.Title)
	}

	doc = Parse([]byte("just text"), "file-name")
	if doc.Title != "file-name" {
		t.Errorf("fallback title = %q", doc.Title)
	}

	doc = Parse([]byte("---\ntitle: [unclosed\n---\n# Heading\n"), "file-name")
	if doc.Title != "Heading" {
		t.Errorf("malformed frontmatter title = %q", doc.Title)
	}
}

func TestParseCreatedLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-04T05:06:07Z", time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)},
		{"2025-03-04 05:06:07", time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)},
		{"2025-03-04", time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Time{}},
		{"", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseCreated(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseCreated(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
