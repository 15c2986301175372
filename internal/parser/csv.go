package parser

import (
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/raglab/docuchat/internal/content"
)

// CSVPartitioner handles CSV files: each row batch becomes an HTML table
// element so tabular data flows through the same verdict path as PDF
// tables.
type CSVPartitioner struct{}

const csvBatchSize = 20

func (p *CSVPartitioner) Partition(r io.Reader, filename string, opts Options) ([]content.Chunk, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := records[0]
	dataRows := records[1:]

	var elems []content.Element
	elems = append(elems, content.TextElement{
		Text: fmt.Sprintf("CSV file %s with columns: %s", filename, strings.Join(headers, ", ")),
	})

	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := i + csvBatchSize
		if end > len(dataRows) {
			end = len(dataRows)
		}
		elems = append(elems, content.TableElement{HTML: csvTableHTML(headers, dataRows[i:end])})
	}

	return Group(elems, opts), nil
}

func csvTableHTML(headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString("<table><tr>")
	for _, h := range headers {
		sb.WriteString("<th>" + html.EscapeString(h) + "</th>")
	}
	sb.WriteString("</tr>")
	for _, row := range rows {
		sb.WriteString("<tr>")
		for _, cell := range row {
			sb.WriteString("<td>" + html.EscapeString(cell) + "</td>")
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</table>")
	return sb.String()
}
