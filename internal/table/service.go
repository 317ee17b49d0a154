package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/tablescan/internal/scanning"
)

var (
	// ErrColumnRequired is returned when a scan names no value column
	ErrColumnRequired = errors.New(`please specify a column name (e.g., "quantity", "amount")`)
	// ErrNoFiles is returned when a scan has nothing to read
	ErrNoFiles = errors.New("please upload at least one file")
	// ErrNoProducts is returned when every page came back without rows
	ErrNoProducts = errors.New("no products found in the images")
	// ErrRowNotFound is returned for an edit outside the table
	ErrRowNotFound = errors.New("row not found")
	// ErrPageNotFound is returned for a preview outside the table
	ErrPageNotFound = errors.New("page not found")
	// ErrUnreadableFile wraps upload conversion failures
	ErrUnreadableFile = errors.New("could not read file")
)

// placeholderAPIKey is treated as no key at all
const placeholderAPIKey = "YOUR_API_KEY_HERE"

// IDGenerator generates unique IDs for scans
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config holds the model names and the optional configured credential
type Config struct {
	// APIKey, when set, takes precedence over the stored key
	APIKey   string
	Model    string
	ProModel string
}

// Upload is one user-supplied file
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ScanRequest describes one scan of a batch of files
type ScanRequest struct {
	Files   []Upload
	Comment string
	Column  string
	Pro     bool
}

// Settings is the user-visible configuration state
type Settings struct {
	HasAPIKey    bool   `json:"has_api_key"`
	ConfiguredBy string `json:"configured_by,omitempty"`
	ProModel     bool   `json:"pro_model"`
	Model        string `json:"model"`
	ProModelName string `json:"pro_model_name"`
}

// Service handles scan and table operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	cfg         Config
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage, cfg Config) *Service {
	return NewServiceWithDeps(db, scanner, storage, cfg, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, cfg Config, idGen IDGenerator, timeSrc TimeSource) *Service {
	if cfg.Model == "" {
		cfg.Model = "gemini-3-flash"
	}
	if cfg.ProModel == "" {
		cfg.ProModel = "gemini-3-pro-preview"
	}
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		cfg:         cfg,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Scan reads every page of the uploaded files in order, extracts rows from
// each and stores the aggregated table. Any failure aborts the whole batch and
// leaves the previously stored table untouched.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*Table, error) {
	column := strings.TrimSpace(req.Column)
	if column == "" {
		return nil, ErrColumnRequired
	}
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}

	apiKey, err := s.APIKey()
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, scanning.ErrMissingAPIKey
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()
	model := s.cfg.Model
	if req.Pro {
		model = s.cfg.ProModel
	}

	var pages []scanning.Page
	for _, f := range req.Files {
		filePages, err := scanning.Pages(f.Filename, f.Data, f.ContentType)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrUnreadableFile, f.Filename, err)
		}
		pages = append(pages, filePages...)
	}
	for i := range pages {
		pages[i].Index = i
	}

	saved := make([]string, 0, len(pages))
	cleanup := func() {
		s.deletePages(saved)
	}

	for _, p := range pages {
		path, err := s.storage.Save(fmt.Sprintf("%s_page%d.png", id, p.Index+1), p.PNG)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("saving page preview: %w", err)
		}
		saved = append(saved, path)
	}

	var records []scanning.Row
	for _, p := range pages {
		slog.Info("Scanning page",
			"scan_id", id,
			"page", p.Index+1,
			"pages", len(pages),
			"source", p.Source,
			"model", model,
		)

		body, err := s.scanner.ScanPage(ctx, scanning.PageRequest{
			APIKey:   apiKey,
			Model:    model,
			Page:     p,
			Comment:  req.Comment,
			Column:   column,
			Previous: Aggregate(records),
		})
		if err != nil {
			slog.Error("Failed to scan page",
				"scan_id", id,
				"page", p.Index+1,
				"source", p.Source,
				"error", err,
			)
			cleanup()
			return nil, fmt.Errorf("scanning page %d: %w", p.Index+1, err)
		}

		rows, err := scanning.ExtractRows(body)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("reading page %d: %w", p.Index+1, err)
		}
		records = append(records, rows...)
	}

	aggregated := Aggregate(records)
	if len(aggregated) == 0 {
		cleanup()
		return nil, ErrNoProducts
	}

	table := &Table{
		ID:        id,
		Column:    column,
		Comment:   strings.TrimSpace(req.Comment),
		Model:     model,
		Rows:      make([]Row, 0, len(aggregated)),
		Pages:     saved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, r := range aggregated {
		table.Rows = append(table.Rows, Row{Code: r.Code, Description: r.Description, Value: r.Value})
	}

	previous, err := s.db.GetTable()
	if err != nil && !errors.Is(err, ErrNoTable) {
		slog.Warn("Failed to load previous table", "error", err)
	}

	if err := s.db.SaveTable(table); err != nil {
		cleanup()
		return nil, fmt.Errorf("saving table: %w", err)
	}
	if previous != nil {
		s.deletePages(previous.Pages)
	}

	slog.Info("Scan complete", "scan_id", id, "pages", len(pages), "rows", len(table.Rows))
	return table, nil
}

func (s *Service) deletePages(paths []string) {
	for _, p := range paths {
		if err := s.storage.Delete(p); err != nil {
			slog.Warn("Failed to delete page preview", "path", p, "error", err)
		}
	}
}

// GetTable returns the current table
func (s *Service) GetTable() (*Table, error) {
	table, err := s.db.GetTable()
	if err != nil {
		return nil, fmt.Errorf("getting table: %w", err)
	}
	return table, nil
}

// ReplaceRows stores the user's edited rows
func (s *Service) ReplaceRows(rows []Row) (*Table, error) {
	table, err := s.GetTable()
	if err != nil {
		return nil, err
	}

	table.Rows = make([]Row, 0, len(rows))
	for _, r := range rows {
		table.Rows = append(table.Rows, Row{
			Code:        strings.TrimSpace(r.Code),
			Description: strings.TrimSpace(r.Description),
			Value:       r.Value,
			Barcode:     strings.TrimSpace(r.Barcode),
		})
	}
	table.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveTable(table); err != nil {
		return nil, fmt.Errorf("saving table: %w", err)
	}
	return table, nil
}

// DeleteRow removes the row at index
func (s *Service) DeleteRow(index int) (*Table, error) {
	table, err := s.GetTable()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(table.Rows) {
		return nil, ErrRowNotFound
	}

	table.Rows = append(table.Rows[:index], table.Rows[index+1:]...)
	table.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveTable(table); err != nil {
		return nil, fmt.Errorf("saving table: %w", err)
	}
	return table, nil
}

// GetPage returns the PNG preview of the n-th page (1-based)
func (s *Service) GetPage(n int) ([]byte, error) {
	table, err := s.GetTable()
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(table.Pages) {
		return nil, ErrPageNotFound
	}

	data, err := s.storage.Get(table.Pages[n-1])
	if err != nil {
		return nil, fmt.Errorf("getting page preview: %w", err)
	}
	return data, nil
}

// exportRows returns the rows to export, treating a missing table as empty
func (s *Service) exportRows() ([]Row, error) {
	table, err := s.db.GetTable()
	if errors.Is(err, ErrNoTable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting table: %w", err)
	}
	return table.Rows, nil
}

// ExportCSV returns the CSV download name and content
func (s *Service) ExportCSV() (string, []byte, error) {
	rows, err := s.exportRows()
	if err != nil {
		return "", nil, err
	}
	data, err := CSV(rows)
	if err != nil {
		return "", nil, err
	}
	return ExportFilename(s.timeSource.Now(), "csv"), data, nil
}

// ExportXLSX returns the workbook download name and content
func (s *Service) ExportXLSX() (string, []byte, error) {
	rows, err := s.exportRows()
	if err != nil {
		return "", nil, err
	}
	data, err := XLSX(rows)
	if err != nil {
		return "", nil, err
	}
	return ExportFilename(s.timeSource.Now(), "xlsx"), data, nil
}

// ClipboardText returns the table as tab separated text
func (s *Service) ClipboardText() (string, error) {
	rows, err := s.exportRows()
	if err != nil {
		return "", err
	}
	return ClipboardText(rows)
}

// APIKey resolves the credential: configured key first, then the stored one
func (s *Service) APIKey() (string, error) {
	if s.cfg.APIKey != "" {
		return s.cfg.APIKey, nil
	}
	key, err := s.db.GetSetting(apiKeySetting)
	if err != nil {
		return "", fmt.Errorf("getting api key: %w", err)
	}
	if key == placeholderAPIKey {
		return "", nil
	}
	return key, nil
}

// SetAPIKey stores the credential for later scans
func (s *Service) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || key == placeholderAPIKey {
		return scanning.ErrMissingAPIKey
	}
	if err := s.db.SaveSetting(apiKeySetting, key); err != nil {
		return fmt.Errorf("saving api key: %w", err)
	}
	return nil
}

// ClearAPIKey forgets the stored credential
func (s *Service) ClearAPIKey() error {
	if err := s.db.DeleteSetting(apiKeySetting); err != nil {
		return fmt.Errorf("clearing api key: %w", err)
	}
	return nil
}

// SetProModel remembers whether scans should use the pro model
func (s *Service) SetProModel(pro bool) error {
	if err := s.db.SaveSetting(proModelSetting, fmt.Sprint(pro)); err != nil {
		return fmt.Errorf("saving model preference: %w", err)
	}
	return nil
}

// Settings reports the credential and model state
func (s *Service) Settings() (*Settings, error) {
	key, err := s.APIKey()
	if err != nil {
		return nil, err
	}
	pro, err := s.db.GetSetting(proModelSetting)
	if err != nil {
		return nil, fmt.Errorf("getting model preference: %w", err)
	}

	settings := &Settings{
		HasAPIKey:    key != "",
		ProModel:     pro == "true",
		Model:        s.cfg.Model,
		ProModelName: s.cfg.ProModel,
	}
	switch {
	case s.cfg.APIKey != "":
		settings.ConfiguredBy = "config"
	case key != "":
		settings.ConfiguredBy = "stored"
	}
	return settings, nil
}
