package split

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
	"github.com/joseph-ayodele/payslip-splitter/internal/testutil"
)

func TestSplitYieldsPagesInOrder(t *testing.T) {
	doc := entity.SourceDocument{
		Name:    "payslips.pdf",
		Content: testutil.BuildPDF("page one", "page two", "page three"),
	}
	seq, err := NewPDFSplitter(nil).Split(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 3, seq.Len())

	pages, err := Collect(seq)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, "payslips.pdf", p.SourceName)
		assert.NotEmpty(t, p.Content)
	}

	// every cut page is itself a one-page document
	for _, p := range pages {
		sub, err := NewPDFSplitter(nil).Split(context.Background(), entity.SourceDocument{Name: "p", Content: p.Content})
		require.NoError(t, err)
		assert.Equal(t, 1, sub.Len())
	}
}

func TestSequenceIsNotRestartable(t *testing.T) {
	seq, err := NewPDFSplitter(nil).Split(context.Background(), entity.SourceDocument{Content: testutil.BuildPDF("only")})
	require.NoError(t, err)
	assert.True(t, seq.Next())
	assert.False(t, seq.Next())
	assert.False(t, seq.Next())
	assert.NoError(t, seq.Err())
}

func TestSplitCorruptDocument(t *testing.T) {
	tests := map[string][]byte{
		"empty":   nil,
		"garbage": []byte("this is not a pdf at all"),
		"truncated": func() []byte {
			b := testutil.BuildPDF("x")
			return b[:len(b)/3]
		}(),
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewPDFSplitter(nil).Split(context.Background(), entity.SourceDocument{Content: content})
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrCorruptDocument))
			var cde *common.CorruptDocumentError
			assert.True(t, errors.As(err, &cde))
		})
	}
}

func TestSequenceStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	seq, err := NewPDFSplitter(nil).Split(ctx, entity.SourceDocument{Content: testutil.BuildPDF("a", "b")})
	require.NoError(t, err)
	cancel()
	assert.False(t, seq.Next())
	assert.ErrorIs(t, seq.Err(), context.Canceled)
}

func pageContent(t *testing.T, single []byte) string {
	t.Helper()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(single), newConfig())
	require.NoError(t, err)
	require.Equal(t, 1, ctx.PageCount)
	r, err := pdfcpu.ExtractPageContent(ctx, 1)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestSplitCutsEachPageFromOneParse(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("payslip number %02d", i+1)
	}
	seq, err := NewPDFSplitter(nil).Split(context.Background(), entity.SourceDocument{Content: testutil.BuildPDF(texts...)})
	require.NoError(t, err)
	pages, err := Collect(seq)
	require.NoError(t, err)
	require.Len(t, pages, 12)
	for i, p := range pages {
		assert.Contains(t, pageContent(t, p.Content), texts[i], "page %d", p.Index)
	}
}
