package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/raglab/docuchat/internal/content"
)

// Remote calls an unstructured-io partition server. It returns raw
// elements; grouping into chunks happens locally so the chunking
// parameters behave identically across all partitioners.
type Remote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRemote(baseURL, apiKey string) *Remote {
	return &Remote{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

type remoteElement struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		PageNumber    int    `json:"page_number"`
		TextAsHTML    string `json:"text_as_html"`
		ImageBase64   string `json:"image_base64"`
		ImageMIMEType string `json:"image_mime_type"`
	} `json:"metadata"`
}

// PartitionElements uploads a document and maps the server's element
// list onto the tagged element variants.
func (r *Remote) PartitionElements(ctx context.Context, data []byte, filename string, opts Options) ([]content.Element, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	fields := map[string]string{
		"strategy":                  "hi_res",
		"pdf_infer_table_structure": "true",
	}
	if opts.ExtractImages {
		fields["extract_image_block_types"] = `["Image"]`
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for _, lang := range opts.Languages {
		if err := mw.WriteField("languages", lang); err != nil {
			return nil, fmt.Errorf("write languages: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/general/v0/general", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("unstructured-api-key", r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("partition api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 256<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("partition api status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var raw []remoteElement
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}

	var elems []content.Element
	for _, e := range raw {
		page := e.Metadata.PageNumber
		switch e.Type {
		case "Table":
			tableHTML := e.Metadata.TextAsHTML
			if tableHTML == "" {
				tableHTML = e.Text
			}
			elems = append(elems, content.TableElement{HTML: tableHTML, Page: page})
		case "Image":
			if e.Metadata.ImageBase64 == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(e.Metadata.ImageBase64)
			if err != nil {
				continue
			}
			elems = append(elems, content.ImageElement{
				Data: data,
				MIME: e.Metadata.ImageMIMEType,
				Page: page,
			})
		default:
			if e.Text != "" {
				elems = append(elems, content.TextElement{Text: e.Text, Page: page})
			}
		}
	}
	return elems, nil
}

// Close releases idle connections.
func (r *Remote) Close() {
	r.httpClient.CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
