package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/fields"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/naming"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/ocr"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/split"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// runocr splits a PDF and prints what the extractor reads on every page,
// without storing anything.
func main() {
	showText := flag.Bool("text", false, "print the recognized text of each page")
	flag.Parse()

	_ = godotenv.Load()
	cfg := common.LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runocr [-text] <payslips.pdf>")
		os.Exit(2)
	}
	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read input", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	seq, err := split.NewPDFSplitter(logger).Split(ctx, entity.SourceDocument{Name: filepath.Base(path), Content: data})
	if err != nil {
		logger.Error("split failed", "error", err)
		os.Exit(1)
	}

	engine := ocr.NewEngine(ocr.Config{
		Pdftotext:         cfg.OCR.PdftotextBin,
		Pdftoppm:          cfg.OCR.PdftoppmBin,
		Tesseract:         cfg.OCR.TesseractBin,
		Lang:              cfg.OCR.Lang,
		DPI:               cfg.OCR.DPI,
		TessdataDir:       cfg.OCR.TessdataDir,
		PSM:               cfg.OCR.PSM,
		OEM:               cfg.OCR.OEM,
		MinTextLayerChars: cfg.OCR.MinTextLayerChars,
	}, logger)
	fcfg := fields.Config{IdentifierWidth: cfg.Pipeline.IdentifierWidth, LowConfidence: cfg.OCR.LowConfidence}
	resolver := naming.NewResolver(cfg.Pipeline.OutputExt, logger)
	names := naming.NewNameSet()

	for seq.Next() {
		page := seq.Page()
		start := time.Now()
		rec, err := engine.Recognize(ctx, page.Content)
		if err != nil {
			fmt.Printf("page %d: recognition failed: %v\n", page.Index, err)
			continue
		}
		f := fields.Parse(rec, fcfg)
		name, err := resolver.Resolve(page.Index, f, names)
		if err != nil {
			name = "(" + err.Error() + ")"
		}

		fmt.Printf("page %d  method=%s  confidence=%.2f  took=%s\n", page.Index, rec.Method, rec.Confidence, time.Since(start).Round(time.Millisecond))
		printField("identifier", f.Identifier)
		printField("surname", f.Surname)
		printField("given_name", f.GivenName)
		printField("period", f.Period)
		fmt.Printf("  filename    %s\n", name)
		if *showText {
			fmt.Println("  ---")
			fmt.Println(rec.Text)
			fmt.Println("  ---")
		}
	}
	if err := seq.Err(); err != nil {
		logger.Error("split failed", "error", err)
		os.Exit(1)
	}
}

func printField(label string, f entity.Field) {
	fmt.Printf("  %-11s %-24q %s %.2f\n", label, f.Value, f.State, f.Confidence)
}
