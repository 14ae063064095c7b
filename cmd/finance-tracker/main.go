package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/finance-tracker/internal/category"
	"github.com/zombor/finance-tracker/internal/extract"
	"github.com/zombor/finance-tracker/internal/ledger"
	"github.com/zombor/finance-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("finance-tracker")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "finance-tracker.db", "Database file path")
		scratchPath   = fs.StringLong("scratch", "./scratch", "Directory for uploads while they are being read")
		scannerType   = fs.StringLong("scanner", "gemini", "OCR engine: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		pdfEngine     = fs.StringLong("pdf-engine", "fitz", "PDF text engine: 'fitz' (MuPDF) or 'plain' (pure Go)")
		rulesPath     = fs.StringLong("category-rules", "", "YAML file with category keyword rules (optional)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username, also the user id (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		jwtSecret     = fs.StringLong("jwt-secret", "", "HS256 secret for bearer tokens (optional)")
		maxUploadMB   = fs.IntLong("max-upload-mb", 50, "Maximum upload size in megabytes")
		ingestTimeout = fs.DurationLong("ingest-timeout", 2*time.Minute, "Time limit for one upload, 0 for none")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("FINANCE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize classifier
	classifier := category.NewDefaultClassifier()
	if *rulesPath != "" {
		var err error
		classifier, err = loadClassifier(*rulesPath)
		if err != nil {
			slog.Error("Failed to load category rules", "path", *rulesPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded category rules", "path", *rulesPath)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := ledger.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR engine based on type
	var recognizer scanning.Recognizer
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini OCR...", "model", *geminiModel)
		recognizer, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama OCR...", "url", *ollamaURL, "model", *ollamaModel)
		recognizer, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer recognizer.Close()

	var pdfText scanning.TextExtractor
	switch *pdfEngine {
	case "fitz":
		pdfText = scanning.NewFitz()
	case "plain":
		pdfText = scanning.NewPlainPDF()
	default:
		slog.Error("Invalid PDF engine", "engine", *pdfEngine, "valid", "fitz or plain")
		os.Exit(1)
	}

	// Initialize scratch storage
	store, err := ledger.NewLocalStorage(*scratchPath)
	if err != nil {
		slog.Error("Failed to initialize scratch storage", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := ledger.NewService(db,
		ledger.Engines{OCR: recognizer, PDF: pdfText},
		store,
		extract.New(classifier),
		ledger.WithMetrics(ledger.NewMetrics(reg)),
		ledger.WithIngestTimeout(*ingestTimeout),
	)

	auth := ledger.Auth{
		Username:  *authUser,
		Password:  *authPass,
		JWTSecret: []byte(*jwtSecret),
	}
	server := ledger.NewServer(service, auth,
		ledger.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ledger.WithMaxUploadSize(int64(*maxUploadMB)<<20),
	)

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if auth.Enabled() {
		slog.Info("Authentication enabled", "basic_user", *authUser, "jwt", *jwtSecret != "")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down cleanly", "error", err)
	}
}

// loadClassifier builds a classifier from a YAML rules file
func loadClassifier(path string) (*category.Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer f.Close()

	rules, err := category.LoadRules(f)
	if err != nil {
		return nil, err
	}
	return category.NewClassifier(rules)
}
