package bundle

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

// Manifest is the manifest.json written at the root of every bundle.
type Manifest struct {
	BatchID     string                 `json:"batch_id"`
	Source      string                 `json:"source"`
	Status      string                 `json:"status"`
	Layout      string                 `json:"layout"`
	CreatedAt   string                 `json:"created_at,omitempty"`
	CompletedAt string                 `json:"completed_at,omitempty"`
	TotalPages  int                    `json:"total_pages"`
	Files       []entity.BundleFile    `json:"files"`
	Failures    []entity.BundleFailure `json:"failures"`
}

func newManifest(snap entity.BatchSnapshot, b entity.Bundle, layout string) Manifest {
	m := Manifest{
		BatchID:    snap.ID.String(),
		Source:     snap.SourceName,
		Status:     string(snap.Status),
		Layout:     layout,
		TotalPages: len(snap.Pages),
		Files:      b.Files,
		Failures:   b.Failures,
	}
	if !snap.CreatedAt.IsZero() {
		m.CreatedAt = snap.CreatedAt.UTC().Format(time.RFC3339)
	}
	if snap.CompletedAt != nil {
		m.CompletedAt = snap.CompletedAt.UTC().Format(time.RFC3339)
	}
	return m
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func manifestSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("manifest.schema.json", bytes.NewReader(manifestSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("manifest.schema.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// ValidateManifest checks raw manifest JSON against the embedded schema.
func ValidateManifest(data []byte) error {
	s, err := manifestSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal manifest: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("manifest does not match schema: %w", err)
	}
	return nil
}

func encodeManifest(m Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := ValidateManifest(data); err != nil {
		return nil, err
	}
	return data, nil
}
