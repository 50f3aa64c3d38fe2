package tts

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

// urduFullStop closes headings, list items, and paragraphs that lack a terminator.
const urduFullStop = "۔"

// TextPreparer turns user input into narratable plain text.
type TextPreparer struct {
	markdown bool
}

// NewTextPreparer creates a preparer. When markdown is true the input is parsed
// as markdown and only its readable text is kept.
func NewTextPreparer(markdown bool) *TextPreparer {
	return &TextPreparer{markdown: markdown}
}

// Prepare normalizes text to NFC so visually identical Urdu input produces
// identical chunks and cache keys.
func (p *TextPreparer) Prepare(input string) string {
	s := norm.NFC.String(input)
	if p.markdown {
		s = p.extractPlainText(s)
	}
	return strings.TrimSpace(s)
}

// NormalizeWhitespace collapses newlines and runs of whitespace into single
// spaces and trims the result.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// extractPlainText extracts plain text from markdown using goldmark.
func (p *TextPreparer) extractPlainText(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var buf strings.Builder
	walkNode(doc, reader.Source(), &buf)

	return buf.String()
}

// walkNode recursively walks the AST and extracts text content.
func walkNode(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.Image:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteString(" ")
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem:
		walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return
	}

	walkChildren(node, source, buf)
}

func walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walkNode(c, source, buf)
	}
}

// endSentence terminates the text written so far unless it already ends in a
// sentence terminator, then separates it from what follows.
func endSentence(buf *strings.Builder) {
	content := strings.TrimRightFunc(buf.String(), unicode.IsSpace)
	if content == "" {
		return
	}
	last := []rune(content)[len([]rune(content))-1]
	if !strings.ContainsRune(sentenceTerminators, last) && last != ':' {
		buf.Reset()
		buf.WriteString(content)
		buf.WriteString(urduFullStop)
	}
	buf.WriteString("\n")
}
