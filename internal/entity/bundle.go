package entity

import (
	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-splitter/constants"
)

// BundleFile is one renamed page inside a bundle.
type BundleFile struct {
	Page     int    `json:"page"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// BundleFailure is the manifest entry of a page that did not make it.
type BundleFailure struct {
	Page   int                 `json:"page"`
	Kind   constants.ErrorKind `json:"kind"`
	Detail string              `json:"detail"`
}

// Bundle is the materialized output of a finished batch.
type Bundle struct {
	BatchID  uuid.UUID             `json:"batch_id"`
	Key      string                `json:"key"`
	Size     int64                 `json:"size"`
	Status   constants.BatchStatus `json:"status"`
	Files    []BundleFile          `json:"files"`
	Failures []BundleFailure       `json:"failures"`
}

// DescribeBundle lists the Named pages and the failures of a finished batch.
// Paths default to the bare filename.
func DescribeBundle(snap BatchSnapshot) Bundle {
	b := Bundle{
		BatchID:  snap.ID,
		Status:   snap.Status,
		Files:    []BundleFile{},
		Failures: []BundleFailure{},
	}
	for _, p := range snap.Pages {
		switch p.Status {
		case constants.PageStatusNamed:
			b.Files = append(b.Files, BundleFile{Page: p.Index, Filename: p.Filename, Path: p.Filename})
		case constants.PageStatusFailed:
			f := BundleFailure{Page: p.Index}
			if p.Error != nil {
				f.Kind, f.Detail = p.Error.Kind, p.Error.Detail
			}
			b.Failures = append(b.Failures, f)
		}
	}
	return b
}
