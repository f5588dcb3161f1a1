// Package index turns a directory of markdown memories into store rows:
// files, full-text content, WikiLink concept mentions and embeddings.
package index

import (
	"bytes"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Document is a parsed memory file.
type Document struct {
	Title    string
	Created  time.Time // zero unless set in frontmatter
	Tier     string    // raw frontmatter value
	Tags     []string
	Body     string         // content after the frontmatter
	Concepts map[string]int // normalized concept → mentions
}

type frontmatter struct {
	Title   string   `yaml:"title"`
	Created string   `yaml:"created"`
	Tier    string   `yaml:"tier"`
	Tags    []string `yaml:"tags"`
}

var (
	md = goldmark.New()

	wikiLinkRe   = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
	codeSpanRe   = regexp.MustCompile("`+[^`]*`+")
	hyphenRunRe  = regexp.MustCompile(`-{2,}`)
	slugStripRe  = regexp.MustCompile(`[^a-z0-9\-]`)
	slugSpacesRe = regexp.MustCompile(`[\s_]+`)

	createdLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// Parse reads a markdown memory. fallbackTitle is used when neither the
// frontmatter nor a heading names the document.
func Parse(src []byte, fallbackTitle string) *Document {
	fmRaw, body := splitFrontmatter(src)

	doc := &Document{Body: string(body), Concepts: make(map[string]int)}
	if len(fmRaw) > 0 {
		var fm frontmatter
		if err := yaml.Unmarshal(fmRaw, &fm); err != nil {
			log.Printf("index: ignoring malformed frontmatter (%s): %v", fallbackTitle, err)
		} else {
			doc.Title = strings.TrimSpace(fm.Title)
			doc.Tier = strings.TrimSpace(fm.Tier)
			doc.Tags = fm.Tags
			doc.Created = parseCreated(fm.Created)
		}
	}

	heading := walkBody(body, doc.Concepts)
	for _, tag := range doc.Tags {
		if c := NormalizeConcept(tag); c != "" {
			doc.Concepts[c]++
		}
	}

	if doc.Title == "" {
		doc.Title = heading
	}
	if doc.Title == "" {
		doc.Title = fallbackTitle
	}
	return doc
}

// splitFrontmatter separates a leading "---" YAML block from the body.
func splitFrontmatter(src []byte) (fm, body []byte) {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	var rest []byte
	switch {
	case bytes.HasPrefix(src, []byte("---\n")):
		rest = src[4:]
	case bytes.HasPrefix(src, []byte("---\r\n")):
		rest = src[5:]
	default:
		return nil, src
	}

	for off := 0; off < len(rest); {
		nl := bytes.IndexByte(rest[off:], '\n')
		line := rest[off:]
		next := len(rest)
		if nl >= 0 {
			line = rest[off : off+nl]
			next = off + nl + 1
		}
		if string(bytes.TrimRight(line, "\r")) == "---" {
			return rest[:off], bytes.TrimLeft(rest[next:], "\r\n")
		}
		off = next
	}
	// Unterminated: treat everything as body.
	return nil, src
}

func parseCreated(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	log.Printf("index: unparseable created %q", s)
	return time.Time{}
}

// walkBody collects WikiLinks from prose blocks into concepts, skipping code,
// and returns the text of the first heading.
func walkBody(body []byte, concepts map[string]int) string {
	var heading string
	root := md.Parser().Parse(text.NewReader(body))
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindCodeBlock, ast.KindFencedCodeBlock, ast.KindHTMLBlock:
			return ast.WalkSkipChildren, nil
		case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock:
			raw := blockText(n, body)
			if heading == "" && n.Kind() == ast.KindHeading {
				heading = strings.TrimSpace(wikiLinkRe.ReplaceAllString(raw, "$1"))
			}
			for _, c := range ExtractConcepts(raw) {
				concepts[c]++
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return heading
}

func blockText(n ast.Node, src []byte) string {
	var buf strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}

// ExtractConcepts returns the normalized WikiLink targets in a line of prose,
// in order of appearance, one entry per mention. Inline code is ignored.
func ExtractConcepts(s string) []string {
	s = codeSpanRe.ReplaceAllString(s, "")
	var out []string
	for _, m := range wikiLinkRe.FindAllStringSubmatch(s, -1) {
		if c := NormalizeConcept(m[1]); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// NormalizeConcept maps a WikiLink target to its canonical concept name:
// lowercase, with spaces, underscores and slashes as single hyphens.
func NormalizeConcept(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "-", "_", "-", "/", "-").Replace(s)
	s = hyphenRunRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Slugify turns a title into a lookup slug.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = slugSpacesRe.ReplaceAllString(s, "-")
	s = slugStripRe.ReplaceAllString(s, "")
	s = hyphenRunRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
