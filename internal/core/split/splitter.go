package split

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// Splitter decomposes a source document into single-page documents.
type Splitter interface {
	Split(ctx context.Context, doc entity.SourceDocument) (Sequence, error)
}

// Sequence yields pages in original order. It is finite and not restartable.
//
//	for seq.Next() {
//		page := seq.Page()
//	}
//	if err := seq.Err(); err != nil { ... }
type Sequence interface {
	Next() bool
	Page() entity.PageImage
	Err() error
	// Len is the number of pages the document declares.
	Len() int
}

// PDFSplitter splits PDFs with pdfcpu.
type PDFSplitter struct {
	logger *slog.Logger
}

func NewPDFSplitter(logger *slog.Logger) *PDFSplitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFSplitter{logger: logger}
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.EXTRACTPAGES
	return conf
}

// Split reads and validates the whole document once before yielding the first
// page; pages are then cut from that parsed context. Parse failures and empty
// documents are CorruptDocumentError.
func (s *PDFSplitter) Split(ctx context.Context, doc entity.SourceDocument) (seq Sequence, err error) {
	if len(doc.Content) == 0 {
		return nil, &common.CorruptDocumentError{Cause: errors.New("empty document")}
	}
	defer func() {
		// pdfcpu panics on some malformed cross-reference tables
		if r := recover(); r != nil {
			seq = nil
			err = &common.CorruptDocumentError{Cause: fmt.Errorf("pdf parse panic: %v", r)}
		}
	}()

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc.Content), newConfig())
	if err != nil {
		return nil, &common.CorruptDocumentError{Cause: fmt.Errorf("pdfcpu read: %w", err)}
	}
	if pdfCtx.PageCount <= 0 {
		return nil, &common.CorruptDocumentError{Cause: errors.New("document has no pages")}
	}

	s.logger.Debug("split.document.validated", "source", doc.Name, "pages", pdfCtx.PageCount, "bytes", len(doc.Content))
	return &pdfSequence{
		ctx:        ctx,
		pdf:        pdfCtx,
		sourceName: doc.Name,
		count:      pdfCtx.PageCount,
	}, nil
}

type pdfSequence struct {
	ctx        context.Context
	pdf        *model.Context
	sourceName string
	count      int
	next       int
	cur        entity.PageImage
	err        error
}

func (q *pdfSequence) Len() int { return q.count }

func (q *pdfSequence) Next() bool {
	if q.err != nil || q.next >= q.count {
		return false
	}
	if err := q.ctx.Err(); err != nil {
		q.err = err
		return false
	}
	q.next++
	content, err := cutPage(q.pdf, q.next)
	if err != nil {
		q.err = &common.CorruptDocumentError{Cause: fmt.Errorf("page %d: %w", q.next, err)}
		return false
	}
	q.cur = entity.PageImage{Index: q.next, Content: content, SourceName: q.sourceName}
	return true
}

func (q *pdfSequence) Page() entity.PageImage { return q.cur }

func (q *pdfSequence) Err() error { return q.err }

func cutPage(pdf *model.Context, page int) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu extract panic: %v", r)
		}
	}()
	r, err := api.ExtractPage(pdf, page)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu extract: %w", err)
	}
	return io.ReadAll(r)
}

// Collect drains a sequence. Any error aborts with no pages.
func Collect(seq Sequence) ([]entity.PageImage, error) {
	pages := make([]entity.PageImage, 0, seq.Len())
	for seq.Next() {
		pages = append(pages, seq.Page())
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}
