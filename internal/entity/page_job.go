package entity

import (
	"fmt"
	"time"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
)

// PageError records why a page failed.
type PageError struct {
	Kind   constants.ErrorKind `json:"kind"`
	Detail string              `json:"detail"`
}

// PageJob tracks the processing of one page of a batch.
type PageJob struct {
	Index     int                  `json:"index"`
	Status    constants.PageStatus `json:"status"`
	Fields    *ExtractedFields     `json:"fields,omitempty"`
	Filename  string               `json:"filename,omitempty"`
	Error     *PageError           `json:"error,omitempty"`
	SourceKey string               `json:"source_key,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewPageJob returns a PENDING job for the given 1-based page index.
func NewPageJob(index int, sourceKey string) PageJob {
	return PageJob{
		Index:     index,
		Status:    constants.PageStatusPending,
		SourceKey: sourceKey,
		UpdatedAt: time.Now().UTC(),
	}
}

// CanTransition reports whether from -> to is a legal move. Success moves go
// one step forward; FAILED is reachable from any non-terminal state.
func CanTransition(from, to constants.PageStatus) bool {
	if from.Terminal() || !from.Valid() || !to.Valid() {
		return false
	}
	if to == constants.PageStatusFailed {
		return true
	}
	return to.Rank() == from.Rank()+1
}

// Transition moves the job to a non-failed status.
func (j *PageJob) Transition(to constants.PageStatus) error {
	if to == constants.PageStatusFailed {
		return fmt.Errorf("%w: use Fail to mark page %d failed", common.ErrInvalidTransition, j.Index)
	}
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: page %d %s -> %s", common.ErrInvalidTransition, j.Index, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the job to FAILED with the given cause.
func (j *PageJob) Fail(kind constants.ErrorKind, detail string) error {
	if !CanTransition(j.Status, constants.PageStatusFailed) {
		return fmt.Errorf("%w: page %d %s -> %s", common.ErrInvalidTransition, j.Index, j.Status, constants.PageStatusFailed)
	}
	j.Status = constants.PageStatusFailed
	j.Error = &PageError{Kind: kind, Detail: detail}
	j.Filename = ""
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy safe to hand out of a lock.
func (j PageJob) Clone() PageJob {
	out := j
	if j.Fields != nil {
		f := *j.Fields
		out.Fields = &f
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}
