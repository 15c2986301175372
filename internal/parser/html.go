package parser

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/raglab/docuchat/internal/content"
	"golang.org/x/net/html"
)

// HTMLPartitioner handles HTML files. Tables are kept as raw HTML
// subtrees, images with data-URI sources become image payloads, and the
// remaining block text becomes text elements.
type HTMLPartitioner struct{}

func (p *HTMLPartitioner) Partition(r io.Reader, filename string, opts Options) ([]content.Chunk, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var elems []content.Element
	var currentText strings.Builder

	flushText := func() {
		t := strings.TrimSpace(currentText.String())
		if t != "" {
			elems = append(elems, content.TextElement{Text: t})
		}
		currentText.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer":
				return
			case "table":
				flushText()
				var buf strings.Builder
				if err := html.Render(&buf, n); err == nil {
					elems = append(elems, content.TableElement{HTML: buf.String()})
				}
				return
			case "img":
				if img, ok := imageFromNode(n); ok {
					flushText()
					elems = append(elems, img)
				}
				return
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "blockquote":
				t := textContent(n)
				if t != "" {
					if currentText.Len() > 0 {
						currentText.WriteString("\n\n")
					}
					currentText.WriteString(t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	flushText()

	return Group(elems, opts), nil
}

// imageFromNode decodes an <img> whose src is a data URI. External
// sources are not fetched.
func imageFromNode(n *html.Node) (content.ImageElement, bool) {
	var src string
	for _, a := range n.Attr {
		if a.Key == "src" {
			src = a.Val
			break
		}
	}
	if !strings.HasPrefix(src, "data:image/") {
		return content.ImageElement{}, false
	}
	rest := strings.TrimPrefix(src, "data:")
	semi := strings.Index(rest, ";base64,")
	if semi < 0 {
		return content.ImageElement{}, false
	}
	mime := rest[:semi]
	data, err := base64.StdEncoding.DecodeString(rest[semi+len(";base64,"):])
	if err != nil || len(data) == 0 {
		return content.ImageElement{}, false
	}
	return content.ImageElement{Data: data, MIME: mime}, true
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
