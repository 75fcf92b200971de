// Package vision asks a multimodal model for a short staging brief of a
// room photo.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const studioPrompt = `You are a world-class luxury interior designer and architectural visualizer.
Analyze this room photo and provide a brief, professional "Studio Vision" in Japanese (about 150 characters).
Include:
1. Spatial characteristics (e.g., lighting, ceiling height).
2. Recommended staging style (e.g., Japandi, Modern Minimalist).
3. One key advice to maximize market value.
Keep the tone extremely professional, encouraging, and sophisticated.`

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("vision analysis is not configured")

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type GenerateRequest struct {
	Contents []content `json:"contents"`
}

type GenerateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithBaseURL points the client at another API root.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// Analyze sends a base64 JPEG (bare or as a data URL) with the studio
// prompt and returns the model's text.
func (c *Client) Analyze(ctx context.Context, imageBase64 string) (string, error) {
	if c.apiKey == "" {
		return "", ErrDisabled
	}
	data := imageBase64
	if i := strings.IndexByte(data, ','); i >= 0 {
		data = data[i+1:]
	}
	if data == "" {
		return "", fmt.Errorf("image is empty")
	}

	payload := GenerateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{MimeType: "image/jpeg", Data: data}},
				{Text: studioPrompt},
			},
		}},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to analyze image: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result GenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var text strings.Builder
	for _, cand := range result.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty analysis in response")
	}
	return strings.TrimSpace(text.String()), nil
}
