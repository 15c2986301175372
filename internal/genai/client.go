// Package genai is a minimal REST client for the Google Generative
// Language API: text generation with inline images and schema-constrained
// JSON output, plus text embeddings.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client calls the Generative Language API. The API key is supplied per
// call so one client can serve a rotating key pool.
type Client struct {
	baseURL     string
	model       string
	embedModel  string
	temperature float64
	httpClient  *http.Client
}

func NewClient(model, embedModel string, temperature float64) *Client {
	return &Client{
		baseURL:     defaultBaseURL,
		model:       model,
		embedModel:  embedModel,
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// NewClientWithBaseURL is used by tests to point at a stub server.
func NewClientWithBaseURL(baseURL, model, embedModel string, temperature float64) *Client {
	c := NewClient(model, embedModel, temperature)
	c.baseURL = baseURL
	return c
}

// InlineImage is an image payload attached to a generation request.
type InlineImage struct {
	MIME string
	Data []byte
}

// Schema is a subset of the provider's response-schema grammar, enough
// to constrain enrichment and answer outputs.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// GenerateRequest is one generation call: a text prompt, optional inline
// images, and an optional response schema forcing JSON output.
type GenerateRequest struct {
	System string
	Text   string
	Images []InlineImage
	Schema *Schema
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inline_data,omitempty"`
}

type apiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type apiGenerateRequest struct {
	Contents          []apiContent         `json:"contents"`
	SystemInstruction *apiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *apiGenerationConfig `json:"generationConfig,omitempty"`
}

type apiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type apiErrorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate runs one generation call and returns the raw model text
// (JSON when a schema was supplied).
func (c *Client) Generate(ctx context.Context, apiKey string, req GenerateRequest) (string, error) {
	parts := []apiPart{{Text: req.Text}}
	for _, img := range req.Images {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, apiPart{InlineData: &apiInlineData{
			MIMEType: mime,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}

	body := apiGenerateRequest{
		Contents: []apiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &apiGenerationConfig{
			Temperature: c.temperature,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &apiContent{Parts: []apiPart{{Text: req.System}}}
	}
	if req.Schema != nil {
		body.GenerationConfig.ResponseMIMEType = "application/json"
		body.GenerationConfig.ResponseSchema = req.Schema
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, apiKey)
	respBody, err := c.post(ctx, url, body)
	if err != nil {
		return "", err
	}

	var apiResp apiGenerateResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", &APIError{Kind: KindTransient, Status: "EMPTY_RESPONSE", Message: "no candidates returned"}
	}

	var text string
	for _, p := range apiResp.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}

type apiEmbedRequest struct {
	Content apiContent `json:"content"`
}

type apiEmbedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// Embed returns the embedding vector for a text.
func (c *Client) Embed(ctx context.Context, apiKey, text string) ([]float64, error) {
	body := apiEmbedRequest{Content: apiContent{Parts: []apiPart{{Text: text}}}}
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", c.baseURL, c.embedModel, apiKey)
	respBody, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	var apiResp apiEmbedResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(apiResp.Embedding.Values) == 0 {
		return nil, &APIError{Kind: KindTransient, Status: "EMPTY_EMBEDDING", Message: "no values returned"}
	}
	return apiResp.Embedding.Values, nil
}

func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("genai api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp apiErrorResponse
		status, message := "", string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			status = errResp.Error.Status
			message = errResp.Error.Message
		}
		return nil, &APIError{
			Kind:       Classify(resp.StatusCode, status, message),
			StatusCode: resp.StatusCode,
			Status:     status,
			Message:    message,
		}
	}
	return respBody, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
