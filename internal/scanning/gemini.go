package scanning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using the Google Gemini SDK.
// A client is opened per page because the API key may change between scans.
type Gemini struct {
	timeout time.Duration
	opts    []option.ClientOption
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(timeout time.Duration, opts ...option.ClientOption) (*Gemini, error) {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Gemini{timeout: timeout, opts: opts}, nil
}

// ScanPage analyzes a page and returns a candidate-style envelope
func (g *Gemini) ScanPage(ctx context.Context, req PageRequest) ([]byte, error) {
	if req.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	opts := append([]option.ClientOption{option.WithAPIKey(req.APIKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	model.SetTemperature(0)

	// genai.ImageData expects just the format suffix, pages are always PNG
	resp, err := model.GenerateContent(ctx,
		genai.Text(buildPrompt(req.Column, req.Comment, req.Previous)),
		genai.ImageData("png", req.Page.PNG),
	)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	return candidateEnvelope(resp)
}

// Close is a no-op, clients are closed after each page
func (g *Gemini) Close() error {
	return nil
}

// candidateEnvelope re-encodes an SDK response in the REST candidates shape
func candidateEnvelope(resp *genai.GenerateContentResponse) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
		Role  string `json:"role,omitempty"`
	}
	type candidate struct {
		Content content `json:"content"`
	}

	env := struct {
		Candidates []candidate `json:"candidates"`
	}{Candidates: []candidate{}}

	if resp != nil {
		for _, c := range resp.Candidates {
			if c == nil || c.Content == nil {
				continue
			}
			cand := candidate{Content: content{Role: c.Content.Role, Parts: []part{}}}
			for _, p := range c.Content.Parts {
				if text, ok := p.(genai.Text); ok {
					cand.Content.Parts = append(cand.Content.Parts, part{Text: string(text)})
				}
			}
			env.Candidates = append(env.Candidates, cand)
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding gemini response: %w", err)
	}
	return data, nil
}
