package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned when a scan is attempted without a credential
var ErrMissingAPIKey = errors.New("API key is required. Please provide a valid API key")

// Row is one product line extracted from a page
type Row struct {
	Code        string  `json:"codice"`
	Description string  `json:"descrizione"`
	Value       float64 `json:"valore"`
}

// Page is a single rasterized page ready to be sent to a model
type Page struct {
	Index  int    // zero-based position within the batch
	Source string // original filename
	PNG    []byte
}

// DataURL renders the page as an inline PNG data URL
func (p Page) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(p.PNG)
}

// PageRequest carries everything needed to extract one page
type PageRequest struct {
	APIKey  string
	Model   string
	Page    Page
	Comment string
	Column  string
	// Previous holds the rows aggregated from the pages already processed
	Previous []Row
}

// APIError is a non-2xx answer from the inference endpoint
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed: %s - %s", e.Status, e.Body)
}

// Scanner defines the interface for table extraction backends
type Scanner interface {
	// ScanPage sends one page to the model and returns the raw response envelope
	ScanPage(ctx context.Context, req PageRequest) ([]byte, error)
	// Close closes the scanner and releases resources
	Close() error
}
