package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/payslip-splitter/constants"
)

func pages(statuses ...constants.PageStatus) []PageJob {
	out := make([]PageJob, len(statuses))
	for i, s := range statuses {
		out[i] = PageJob{Index: i + 1, Status: s}
	}
	return out
}

func TestComputeBatchStatus(t *testing.T) {
	const (
		named   = constants.PageStatusNamed
		failed  = constants.PageStatusFailed
		pending = constants.PageStatusPending
		naming  = constants.PageStatusNaming
	)
	tests := []struct {
		name    string
		pages   []PageJob
		failure *BatchFailure
		want    constants.BatchStatus
	}{
		{"all named", pages(named, named, named), nil, constants.BatchStatusAllSucceeded},
		{"partial", pages(named, failed, named), nil, constants.BatchStatusPartialSuccess},
		{"all failed", pages(failed, failed), nil, constants.BatchStatusAllFailed},
		{"still running", pages(named, naming, failed), nil, constants.BatchStatusInProgress},
		{"nothing started", pages(pending), nil, constants.BatchStatusInProgress},
		{"corrupt", nil, &BatchFailure{Kind: constants.ErrorKindCorruptDocument}, constants.BatchStatusAllFailed},
		{"failure overrides pages", pages(named), &BatchFailure{}, constants.BatchStatusAllFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeBatchStatus(tt.pages, tt.failure))
		})
	}
}

func TestComputeProgress(t *testing.T) {
	p := ComputeProgress(pages(constants.PageStatusNamed, constants.PageStatusFailed, constants.PageStatusExtracting, constants.PageStatusNamed))
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, 2, p.Named)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 1, p.InFlight)
	assert.InDelta(t, 75.0, p.Percent, 0.001)
	assert.InDelta(t, 66.666, p.SuccessRate, 0.01)

	empty := ComputeProgress(nil)
	assert.Zero(t, empty.Percent)
	assert.Zero(t, empty.SuccessRate)
}

func TestBatchPageLookup(t *testing.T) {
	b := Batch{Pages: pages(constants.PageStatusPending, constants.PageStatusPending)}
	p, ok := b.Page(2)
	assert.True(t, ok)
	assert.Equal(t, 2, p.Index)
	_, ok = b.Page(0)
	assert.False(t, ok)
	_, ok = b.Page(3)
	assert.False(t, ok)
}
