// Package chunker splits textbook markdown/MDX modules into
// retrieval-sized chunks. Sections are cut at headings, then broken
// down further whenever a section exceeds the per-chunk token limit.
package chunker

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"physicalai.dev/textbook-chat/internal/tokenizer"
)

// Chunk is one contiguous span of a textbook module. IDs are content
// hashes, so re-chunking unchanged content yields identical ids.
type Chunk struct {
	ID           string
	ModuleID     string
	ModuleTitle  string
	SectionTitle string
	Text         string
	TokenCount   int
}

type Chunker struct {
	counter   tokenizer.Counter
	maxTokens int
}

func New(counter tokenizer.Counter, maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &Chunker{counter: counter, maxTokens: maxTokens}
}

var (
	frontmatterRe = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
	codeFenceRe   = regexp.MustCompile("(?s)```.*?\n.*?\n```")
)

// ChunkModule chunks the markdown content of one textbook module.
func (c *Chunker) ChunkModule(content, moduleID string) ([]Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	content = frontmatterRe.ReplaceAllString(content, "")
	content = codeFenceRe.ReplaceAllString(content, "")

	sections := splitByHeadings(content)

	var chunks []Chunk
	for _, sec := range sections {
		chunks = append(chunks, c.chunkSection(sec, moduleID)...)
	}
	return chunks, nil
}

type section struct {
	title string
	text  string
}

// splitByHeadings walks the markdown AST and starts a new section at
// every heading. Content before the first heading becomes an
// "Introduction" section.
func splitByHeadings(content string) []section {
	src := []byte(content)
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(src))

	var sections []section
	var current strings.Builder
	currentTitle := "Introduction"

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			sections = append(sections, section{title: currentTitle, text: text})
		}
		current.Reset()
	}

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch node := n.(type) {
			case *ast.Heading:
				flush()
				currentTitle = extractText(node, src)
				current.WriteString(currentTitle + "\n\n")
				return ast.WalkSkipChildren, nil
			case *ast.Text:
				current.Write(node.Segment.Value(src))
			}
		} else {
			if _, ok := n.(*ast.Paragraph); ok {
				current.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	return sections
}

// chunkSection splits a section into chunks that fit the token limit,
// accumulating whole paragraphs where possible.
func (c *Chunker) chunkSection(sec section, moduleID string) []Chunk {
	if c.counter.Count(sec.text) <= c.maxTokens {
		return []Chunk{c.newChunk(sec.text, moduleID, sec.title)}
	}

	var chunks []Chunk
	var current strings.Builder

	for _, para := range splitByParagraphs(sec.text) {
		candidate := para
		if current.Len() > 0 {
			candidate = current.String() + "\n\n" + para
		}

		if c.counter.Count(candidate) <= c.maxTokens {
			current.Reset()
			current.WriteString(candidate)
			continue
		}

		if current.Len() > 0 {
			chunks = append(chunks, c.newChunk(current.String(), moduleID, sec.title))
			current.Reset()
		}

		if c.counter.Count(para) <= c.maxTokens {
			current.WriteString(para)
		} else {
			// A single oversized paragraph is split on line boundaries.
			chunks = append(chunks, c.splitOversized(para, moduleID, sec.title)...)
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, c.newChunk(current.String(), moduleID, sec.title))
	}

	return chunks
}

func (c *Chunker) splitOversized(text, moduleID, sectionTitle string) []Chunk {
	var chunks []Chunk
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		candidate := line
		if current.Len() > 0 {
			candidate = current.String() + "\n" + line
		}
		if c.counter.Count(candidate) > c.maxTokens && current.Len() > 0 {
			chunks = append(chunks, c.newChunk(current.String(), moduleID, sectionTitle))
			current.Reset()
			current.WriteString(line)
			continue
		}
		current.Reset()
		current.WriteString(candidate)
	}

	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, c.newChunk(current.String(), moduleID, sectionTitle))
	}
	return chunks
}

func (c *Chunker) newChunk(text, moduleID, sectionTitle string) Chunk {
	text = strings.TrimSpace(text)
	hash := sha256.Sum256([]byte(moduleID + "\x00" + text))

	return Chunk{
		ID:           fmt.Sprintf("%x", hash[:8]),
		ModuleID:     moduleID,
		ModuleTitle:  ModuleTitle(moduleID),
		SectionTitle: sectionTitle,
		Text:         text,
		TokenCount:   c.counter.Count(text),
	}
}

// ModuleTitle derives a display title from a module id, e.g.
// "introduction-to-physical-ai" -> "Introduction To Physical AI".
func ModuleTitle(moduleID string) string {
	words := strings.Split(moduleID, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		if strings.EqualFold(w, "ai") {
			words[i] = "AI"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func extractText(node ast.Node, src []byte) string {
	var buf strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if textNode, ok := child.(*ast.Text); ok {
			buf.Write(textNode.Segment.Value(src))
		}
	}
	return buf.String()
}

func splitByParagraphs(text string) []string {
	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
