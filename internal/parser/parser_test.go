package parser

import (
	"strings"
	"testing"

	"github.com/raglab/docuchat/internal/content"
)

func testOpts() Options {
	return Options{
		MaxCharacters:          100,
		NewAfterNChars:         150,
		CombineTextUnderNChars: 20,
		ExtractImages:          true,
		ExtractTables:          true,
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"valid", Options{MaxCharacters: 3000, NewAfterNChars: 3800}, false},
		{"zero max", Options{MaxCharacters: 0, NewAfterNChars: 100}, true},
		{"max above soft limit", Options{MaxCharacters: 4000, NewAfterNChars: 3800}, true},
		{"negative combine", Options{MaxCharacters: 100, NewAfterNChars: 200, CombineTextUnderNChars: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestForFile(t *testing.T) {
	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"doc.pdf", false},
		{"doc.PDF", false},
		{"notes.txt", false},
		{"readme.md", false},
		{"data.csv", false},
		{"page.html", false},
		{"report.docx", false},
		{"archive.zip", true},
		{"noext", true},
	}
	for _, tt := range tests {
		_, err := ForFile(tt.filename, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("ForFile(%q) err = %v, wantErr %v", tt.filename, err, tt.wantErr)
		}
	}
}

func TestGroup_SplitsOnLimits(t *testing.T) {
	long := strings.Repeat("a", 90)
	elems := []content.Element{
		content.TextElement{Text: long, Page: 1},
		content.TextElement{Text: long, Page: 2}, // would exceed MaxCharacters
	}
	chunks := Group(elems, testOpts())
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].PageNumbers[0] != 1 || chunks[1].PageNumbers[0] != 2 {
		t.Errorf("page attribution wrong: %v / %v", chunks[0].PageNumbers, chunks[1].PageNumbers)
	}
}

func TestGroup_SoftLimitClosesChunk(t *testing.T) {
	opts := testOpts()
	elems := []content.Element{
		content.TextElement{Text: strings.Repeat("a", 160)}, // past NewAfterNChars
		content.TextElement{Text: "next section"},
	}
	chunks := Group(elems, opts)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[1].Text != "next section" {
		t.Errorf("second chunk = %q", chunks[1].Text)
	}
}

func TestGroup_ShortTextCombines(t *testing.T) {
	// A short run below CombineTextUnderNChars stays with the next text
	// even when the sum passes MaxCharacters.
	elems := []content.Element{
		content.TextElement{Text: "tiny"},
		content.TextElement{Text: strings.Repeat("b", 120)},
	}
	chunks := Group(elems, testOpts())
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Text, "tiny") {
		t.Errorf("combined chunk = %q", chunks[0].Text)
	}
}

func TestGroup_TablesAndImagesAttachToOpenChunk(t *testing.T) {
	elems := []content.Element{
		content.TextElement{Text: "intro", Page: 1},
		content.TableElement{HTML: "<table></table>", Page: 1},
		content.ImageElement{Data: []byte{1}, MIME: "image/png", Page: 1},
	}
	chunks := Group(elems, testOpts())
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	c := chunks[0]
	if len(c.Tables) != 1 || len(c.Images) != 1 {
		t.Errorf("tables = %d, images = %d", len(c.Tables), len(c.Images))
	}
	wantKinds := []string{content.KindText, content.KindTable, content.KindImage}
	if len(c.Kinds) != 3 {
		t.Fatalf("kinds = %v, want %v", c.Kinds, wantKinds)
	}
	for i, k := range wantKinds {
		if c.Kinds[i] != k {
			t.Errorf("kinds = %v, want %v", c.Kinds, wantKinds)
		}
	}
}

func TestGroup_ExtractFlagsOff(t *testing.T) {
	opts := testOpts()
	opts.ExtractTables = false
	opts.ExtractImages = false
	elems := []content.Element{
		content.TextElement{Text: "intro"},
		content.TableElement{HTML: "<table></table>"},
		content.ImageElement{Data: []byte{1}, MIME: "image/png"},
	}
	chunks := Group(elems, opts)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if len(chunks[0].Tables) != 0 || len(chunks[0].Images) != 0 {
		t.Errorf("disabled elements leaked: %+v", chunks[0])
	}
}

func TestTextPartitioner_ParagraphPerBlankLine(t *testing.T) {
	input := "first paragraph\nstill first\n\nsecond paragraph\n\n\nthird"
	p := &TextPartitioner{}
	chunks, err := p.Partition(strings.NewReader(input), "notes.txt", testOpts())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	text := chunks[0].Text
	if !strings.Contains(text, "first paragraph\nstill first") {
		t.Errorf("paragraph merge lost: %q", text)
	}
	if !strings.Contains(text, "third") {
		t.Errorf("final paragraph lost: %q", text)
	}
}

func TestCSVPartitioner_RowsBecomeTables(t *testing.T) {
	input := "name,amount\nalpha,10\nbeta,20\n"
	p := &CSVPartitioner{}
	chunks, err := p.Partition(strings.NewReader(input), "data.csv", testOpts())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	c := chunks[0]
	if !strings.Contains(c.Text, "data.csv") || !strings.Contains(c.Text, "name, amount") {
		t.Errorf("header text = %q", c.Text)
	}
	if len(c.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(c.Tables))
	}
	table := c.Tables[0]
	if !strings.Contains(table, "<th>name</th>") || !strings.Contains(table, "<td>beta</td>") {
		t.Errorf("table html = %q", table)
	}
}

func TestCSVPartitioner_EscapesCells(t *testing.T) {
	input := "col\n\"<script>\"\n"
	p := &CSVPartitioner{}
	chunks, err := p.Partition(strings.NewReader(input), "x.csv", testOpts())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(chunks) != 1 || len(chunks[0].Tables) != 1 {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if strings.Contains(chunks[0].Tables[0], "<script>") {
		t.Error("cell content not escaped")
	}
}

func TestHTMLPartitioner_TablesAndText(t *testing.T) {
	input := `<html><body>
		<h1>Report</h1>
		<p>Revenue grew 10%.</p>
		<table><tr><td>Q3</td></tr></table>
		<script>ignore()</script>
	</body></html>`
	p := &HTMLPartitioner{}
	chunks, err := p.Partition(strings.NewReader(input), "page.html", testOpts())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	c := chunks[0]
	if !strings.Contains(c.Text, "Report") || !strings.Contains(c.Text, "Revenue grew 10%.") {
		t.Errorf("text = %q", c.Text)
	}
	if strings.Contains(c.Text, "ignore()") {
		t.Error("script content leaked into text")
	}
	if len(c.Tables) != 1 || !strings.Contains(c.Tables[0], "<td>Q3</td>") {
		t.Errorf("tables = %v", c.Tables)
	}
}

func TestMarkdownPartitioner_HeadingsAndTables(t *testing.T) {
	input := "# Summary\n\nRevenue grew 10%.\n\n| region | amount |\n| --- | --- |\n| east | 10 |\n"
	p := &MarkdownPartitioner{}
	chunks, err := p.Partition(strings.NewReader(input), "doc.md", testOpts())
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	c := chunks[0]
	if !strings.Contains(c.Text, "Summary") || !strings.Contains(c.Text, "Revenue grew 10%.") {
		t.Errorf("text = %q", c.Text)
	}
	if len(c.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(c.Tables))
	}
	if !strings.Contains(c.Tables[0], "<th>region</th>") || !strings.Contains(c.Tables[0], "<td>east</td>") {
		t.Errorf("table html = %q", c.Tables[0])
	}
}
