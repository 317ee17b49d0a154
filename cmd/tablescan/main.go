package main

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/tablescan/internal/scanning"
	"github.com/zombor/tablescan/internal/table"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const usage = `usage: tablescan [flags] serve
       tablescan [flags] scan FILE...`

type options struct {
	flags       *ff.FlagSet
	port        *int
	dbPath      *string
	storagePath *string
	scannerType *string
	endpoint    *string
	apiKey      *string
	model       *string
	proModel    *string
	pro         *bool
	timeout     *time.Duration
	authUser    *string
	authPass    *string
	column      *string
	comment     *string
	out         *string
	format      *string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("tablescan")
	opts := options{
		flags:       fs,
		port:        fs.IntLong("port", 8080, "HTTP server port"),
		dbPath:      fs.StringLong("db", "tablescan.db", "Database file path"),
		storagePath: fs.StringLong("storage", "./pages", "Page preview directory path"),
		scannerType: fs.StringLong("scanner", "chat", "Scanner type: 'chat' (OpenAI-compatible) or 'gemini'"),
		endpoint:    fs.StringLong("endpoint", scanning.DefaultEndpoint, "Chat completions endpoint URL"),
		apiKey:      fs.StringLong("api-key", "", "API key; overrides the stored key"),
		model:       fs.StringLong("model", "gemini-3-flash", "Default model name"),
		proModel:    fs.StringLong("pro-model", "gemini-3-pro-preview", "Pro model name"),
		pro:         fs.BoolLong("pro", "Use the pro model for scans"),
		timeout:     fs.DurationLong("timeout", 120*time.Second, "Per-request inference timeout"),
		authUser:    fs.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass:    fs.StringLong("auth-pass", "", "Basic auth password (optional)"),
		column:      fs.StringLong("column", "", "Value column to extract (scan)"),
		comment:     fs.StringLong("comment", "", "Extra instructions for the model (scan)"),
		out:         fs.StringLong("out", "", "Output file, stdout when empty (scan)"),
		format:      fs.StringLong("format", "csv", "Output format: csv, tsv or xlsx (scan)"),
	}

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TABLESCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n\n%s\n", usage, ffhelp.Flags(fs))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := fs.GetArgs()
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "serve":
		err = serve(ctx, opts)
	case "scan":
		err = scan(ctx, opts, args, os.Stdin, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "%s\n", usage)
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		slog.Error("Command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

// newService wires the store, preview storage and scanner backend
func newService(opts options) (*table.Service, func(), error) {
	slog.Info("Initializing database...")
	db, err := table.NewBoltDB(*opts.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing database: %w", err)
	}

	var scanner scanning.Scanner
	switch *opts.scannerType {
	case "chat":
		slog.Info("Initializing chat completions scanner...", "endpoint", *opts.endpoint, "model", *opts.model)
		scanner, err = scanning.NewChatCompletions(*opts.endpoint, *opts.timeout)
	case "gemini":
		slog.Info("Initializing Gemini scanner...", "model", *opts.model)
		scanner, err = scanning.NewGemini(*opts.timeout)
	default:
		err = fmt.Errorf("invalid scanner type %q, want chat or gemini", *opts.scannerType)
	}
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	slog.Info("Initializing storage...")
	store, err := table.NewLocalStorage(*opts.storagePath)
	if err != nil {
		scanner.Close()
		db.Close()
		return nil, nil, fmt.Errorf("initializing storage: %w", err)
	}

	service := table.NewService(db, scanner, store, table.Config{
		APIKey:   strings.TrimSpace(*opts.apiKey),
		Model:    *opts.model,
		ProModel: *opts.proModel,
	})
	closeAll := func() {
		scanner.Close()
		db.Close()
	}
	return service, closeAll, nil
}

func serve(ctx context.Context, opts options) error {
	service, closeAll, err := newService(opts)
	if err != nil {
		return err
	}
	defer closeAll()

	basicAuth := table.BasicAuth{
		Username: *opts.authUser,
		Password: *opts.authPass,
	}
	server := table.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *opts.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *opts.authUser != "" || *opts.authPass != "" {
		slog.Info("Basic auth enabled", "user", *opts.authUser)
	}

	if err := server.Start(ctx, addr); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("Shutting down...")
	return nil
}

func scan(ctx context.Context, opts options, files []string, stdin io.Reader, stdout io.Writer) error {
	if len(files) == 0 {
		return table.ErrNoFiles
	}

	service, closeAll, err := newService(opts)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := ensureAPIKey(service, stdin, os.Stderr); err != nil {
		return err
	}

	settings, err := service.Settings()
	if err != nil {
		return err
	}
	req := table.ScanRequest{
		Column:  *opts.column,
		Comment: *opts.comment,
		Pro:     useProModel(opts.flags, *opts.pro, settings.ProModel),
	}
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		req.Files = append(req.Files, table.Upload{Filename: filepath.Base(name), Data: data})
	}

	t, err := service.Scan(ctx, req)
	if errors.Is(err, table.ErrNoProducts) {
		slog.Warn("No products found in the images", "files", len(files))
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("Table extracted", "rows", len(t.Rows), "pages", len(t.Pages))

	return writeExport(service, *opts.format, *opts.out, stdout)
}

// useProModel prefers an explicit --pro (flag or env) over the stored preference
func useProModel(fs *ff.FlagSet, pro, stored bool) bool {
	if f, ok := fs.GetFlag("pro"); ok && f.IsSet() {
		return pro
	}
	return stored
}

// ensureAPIKey prompts for a key on stdin when none is configured or stored
func ensureAPIKey(service *table.Service, stdin io.Reader, prompt io.Writer) error {
	key, err := service.APIKey()
	if err != nil {
		return err
	}
	if key != "" {
		return nil
	}

	fmt.Fprint(prompt, "API key: ")
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading api key: %w", err)
	}
	return service.SetAPIKey(line)
}

func writeExport(service *table.Service, format, out string, stdout io.Writer) error {
	var (
		filename string
		data     []byte
		err      error
	)
	switch format {
	case "csv":
		filename, data, err = service.ExportCSV()
	case "tsv":
		var text string
		text, err = service.ClipboardText()
		data = []byte(text)
	case "xlsx":
		filename, data, err = service.ExportXLSX()
		if out == "" {
			out = filename
		}
	default:
		return fmt.Errorf("invalid format %q, want csv, tsv or xlsx", format)
	}
	if err != nil {
		return err
	}

	if out == "" {
		_, err := stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	slog.Info("Export written", "path", out)
	return nil
}
