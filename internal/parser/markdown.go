package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/raglab/docuchat/internal/content"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownPartitioner handles Markdown files using goldmark with the GFM
// table extension. Tables are re-emitted as HTML table elements.
type MarkdownPartitioner struct{}

func (p *MarkdownPartitioner) Partition(r io.Reader, filename string, opts Options) ([]content.Chunk, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	reader := text.NewReader(src)
	doc := md.Parser().Parse(reader)

	var elems []content.Element
	var currentText strings.Builder

	flushText := func() {
		t := strings.TrimSpace(currentText.String())
		if t != "" {
			elems = append(elems, content.TextElement{Text: t})
		}
		currentText.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if currentText.Len() > 0 {
				currentText.WriteString("\n\n")
			}
			currentText.WriteString(string(node.Text(src)))
		case *east.Table:
			flushText()
			elems = append(elems, content.TableElement{HTML: tableHTML(node, src)})
		default:
			t := extractText(n, src)
			if t != "" {
				if currentText.Len() > 0 {
					currentText.WriteString("\n\n")
				}
				currentText.WriteString(t)
			}
		}
	}
	flushText()

	return Group(elems, opts), nil
}

// tableHTML renders a GFM table AST node as a plain HTML table.
func tableHTML(table *east.Table, src []byte) string {
	var sb strings.Builder
	sb.WriteString("<table>")
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		_, isHeader := row.(*east.TableHeader)
		cellTag := "td"
		if isHeader {
			cellTag = "th"
		}
		sb.WriteString("<tr>")
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			sb.WriteString(fmt.Sprintf("<%s>%s</%s>", cellTag, string(cell.Text(src)), cellTag))
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</table>")
	return sb.String()
}

// extractText gets the text content of a goldmark AST node. Blocks with
// source lines use those directly; container nodes recurse.
func extractText(n ast.Node, src []byte) string {
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		var buf strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}

	var buf strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := extractText(c, src); t != "" {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(t)
		}
	}
	return strings.TrimSpace(buf.String())
}
