package fields

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/ocr"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// Recognizer turns a single-page PDF into text.
type Recognizer interface {
	Recognize(ctx context.Context, pagePDF []byte) (ocr.Recognition, error)
}

type Config struct {
	// IdentifierWidth is the fixed identifier length; shorter values are
	// zero-padded. Default 5.
	IdentifierWidth int
	// LowConfidence flags fields whose words score below it. Default 0.6.
	LowConfidence float32
}

func (c Config) withDefaults() Config {
	if c.IdentifierWidth <= 0 {
		c.IdentifierWidth = 5
	}
	if c.LowConfidence <= 0 {
		c.LowConfidence = 0.6
	}
	return c
}

// Extractor locates the payslip fields on a page.
type Extractor struct {
	rec    Recognizer
	cfg    Config
	logger *slog.Logger
}

func NewExtractor(rec Recognizer, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{rec: rec, cfg: cfg.withDefaults(), logger: logger}
}

// Extract recognizes the page and parses its fields. Only unprocessable pages
// are errors; a page with no recognizable field yields all fields MISSING.
func (x *Extractor) Extract(ctx context.Context, page entity.PageImage) (entity.ExtractedFields, error) {
	if len(page.Content) == 0 {
		return entity.ExtractedFields{}, &common.ExtractionError{Page: page.Index, Cause: errors.New("empty page content")}
	}
	rec, err := x.rec.Recognize(ctx, page.Content)
	if err != nil {
		return entity.ExtractedFields{}, &common.ExtractionError{Page: page.Index, Cause: err}
	}
	for _, w := range rec.Warnings {
		x.logger.Warn("fields.recognition.warning", "page", page.Index, "warning", w)
	}

	out := Parse(rec, x.cfg)
	x.logger.Debug("fields.page.extracted",
		"page", page.Index,
		"method", rec.Method,
		"matched", out.Matched(),
		"identifier", out.Identifier.State,
		"surname", out.Surname.State,
		"given_name", out.GivenName.State,
		"period", out.Period.State,
	)
	return out, nil
}
