package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-splitter/constants"
)

// BatchFailure marks a failure that applies to the whole batch, such as an
// unreadable source document.
type BatchFailure struct {
	Kind   constants.ErrorKind `json:"kind"`
	Detail string              `json:"detail"`
}

// Batch groups the page jobs produced from one source document.
type Batch struct {
	ID          uuid.UUID     `json:"id"`
	SourceName  string        `json:"source_name"`
	Pages       []PageJob     `json:"pages"`
	Failure     *BatchFailure `json:"failure,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Progress summarizes page counts for polling clients.
type Progress struct {
	Total       int     `json:"total"`
	Named       int     `json:"named"`
	Failed      int     `json:"failed"`
	InFlight    int     `json:"in_flight"`
	Percent     float64 `json:"percent"`
	SuccessRate float64 `json:"success_rate"`
}

// BatchSnapshot is a point-in-time copy of a batch with its derived status.
type BatchSnapshot struct {
	Batch
	Status    constants.BatchStatus `json:"status"`
	Progress  Progress              `json:"progress"`
	Cancelled bool                  `json:"cancelled"`
	BundleKey string                `json:"bundle_key,omitempty"`
}

// ComputeBatchStatus derives the aggregate status from page statuses and the
// optional whole-batch failure. It is a pure function.
func ComputeBatchStatus(pages []PageJob, failure *BatchFailure) constants.BatchStatus {
	if failure != nil {
		return constants.BatchStatusAllFailed
	}
	named, failed := 0, 0
	for _, p := range pages {
		switch p.Status {
		case constants.PageStatusNamed:
			named++
		case constants.PageStatusFailed:
			failed++
		default:
			return constants.BatchStatusInProgress
		}
	}
	switch {
	case failed == 0 && named > 0:
		return constants.BatchStatusAllSucceeded
	case named == 0:
		return constants.BatchStatusAllFailed
	default:
		return constants.BatchStatusPartialSuccess
	}
}

// ComputeProgress counts pages by outcome.
func ComputeProgress(pages []PageJob) Progress {
	p := Progress{Total: len(pages)}
	for _, j := range pages {
		switch j.Status {
		case constants.PageStatusNamed:
			p.Named++
		case constants.PageStatusFailed:
			p.Failed++
		default:
			p.InFlight++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Named+p.Failed) * 100 / float64(p.Total)
	}
	if done := p.Named + p.Failed; done > 0 {
		p.SuccessRate = float64(p.Named) * 100 / float64(done)
	}
	return p
}

// Clone deep-copies the batch.
func (b Batch) Clone() Batch {
	out := b
	out.Pages = make([]PageJob, len(b.Pages))
	for i, p := range b.Pages {
		out.Pages[i] = p.Clone()
	}
	if b.Failure != nil {
		f := *b.Failure
		out.Failure = &f
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Page returns the job with the given 1-based index.
func (b *Batch) Page(index int) (*PageJob, bool) {
	if index < 1 || index > len(b.Pages) {
		return nil, false
	}
	return &b.Pages[index-1], true
}
