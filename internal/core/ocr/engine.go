package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/payslip-splitter/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Lang        string // default "fra"
	DPI         int    // rasterization DPI, default 300
	TessdataDir string

	PSM string // e.g. "6" for a uniform block of text; empty -> tesseract default
	OEM string // "1" = LSTM; empty -> tesseract default

	// MinTextLayerChars is the minimum embedded-text length accepted before
	// falling back to OCR.
	MinTextLayerChars int

	// WorkDir hosts per-call temp directories; empty -> os.TempDir().
	WorkDir string
}

// Word is one recognized token with its position on the raster.
type Word struct {
	Text       string  `json:"text"`
	Block      int     `json:"block"`
	Par        int     `json:"par"`
	Line       int     `json:"line"`
	Left       int     `json:"left"`
	Top        int     `json:"top"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float32 `json:"confidence"` // 0..1
}

// Recognition is the output of one page recognition.
type Recognition struct {
	Text       string
	Words      []Word
	Method     string // constants.MethodPDFText | constants.MethodPDFOCR
	Confidence float32
	Duration   time.Duration
	Warnings   []string
}

// Engine renders single-page PDFs and recognizes their text.
type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Engine)

// WithRunner replaces the command runner, mostly for tests.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.runner = r }
}

func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "fra"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinTextLayerChars <= 0 {
		cfg.MinTextLayerChars = 50
	}
	e := &Engine{cfg: cfg, runner: ExecRunner{Env: []string{"OMP_THREAD_LIMIT=1"}}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recognize returns the text of a single-page PDF. The embedded text layer is
// preferred; scanned pages go through pdftoppm and tesseract.
func (e *Engine) Recognize(ctx context.Context, pagePDF []byte) (Recognition, error) {
	start := time.Now()
	if len(pagePDF) == 0 {
		return Recognition{}, errors.New("empty page content")
	}

	tmpDir, err := os.MkdirTemp(e.cfg.WorkDir, "payslip-ocr-*")
	if err != nil {
		return Recognition{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	pdfPath := filepath.Join(tmpDir, "page.pdf")
	if err := os.WriteFile(pdfPath, pagePDF, 0o600); err != nil {
		return Recognition{}, fmt.Errorf("write page: %w", err)
	}

	var warns []string
	txt, err := e.textLayer(ctx, pdfPath)
	if err != nil {
		e.logger.Warn("pdftotext failed, falling back to OCR", "error", err)
		warns = append(warns, err.Error())
	} else if txt = Normalize(txt); utf8.RuneCountInString(txt) >= e.cfg.MinTextLayerChars {
		return Recognition{
			Text:       txt,
			Method:     constants.MethodPDFText,
			Confidence: 1.0,
			Duration:   time.Since(start),
			Warnings:   warns,
		}, nil
	}

	png, err := e.rasterize(ctx, pdfPath, filepath.Join(tmpDir, "page"))
	if err != nil {
		return Recognition{Warnings: warns}, err
	}
	words, err := e.tesseractTSV(ctx, png)
	if err != nil {
		return Recognition{Warnings: warns}, err
	}
	if len(words) == 0 {
		warns = append(warns, "tesseract recognized no words")
	}

	e.logger.Debug("ocr.page.recognized", "words", len(words), "duration_ms", time.Since(start).Milliseconds())
	return Recognition{
		Text:       Normalize(TextFromWords(words)),
		Words:      words,
		Method:     constants.MethodPDFOCR,
		Confidence: MeanConfidence(words),
		Duration:   time.Since(start),
		Warnings:   warns,
	}, nil
}

func (e *Engine) textLayer(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, e.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return string(out), nil
}

// rasterize renders the page to <prefix>.png.
func (e *Engine) rasterize(ctx context.Context, path, prefix string) (string, error) {
	// pdftoppm -r 300 -png -singlefile <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", "-singlefile", path, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	png := prefix + ".png"
	st, err := os.Stat(png)
	if err != nil || st.Size() == 0 {
		return "", errors.New("pdftoppm produced no image")
	}
	return png, nil
}

func (e *Engine) tesseractTSV(ctx context.Context, png string) ([]Word, error) {
	args := []string{png, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM != "" {
		args = append(args, "--psm", e.cfg.PSM)
	}
	if e.cfg.OEM != "" {
		args = append(args, "--oem", e.cfg.OEM)
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	// TSV output
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return ParseTSV(string(out)), nil
}
