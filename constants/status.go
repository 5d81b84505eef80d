package constants

// PageStatus is the lifecycle state of a single page job.
type PageStatus string

// Stable values (store these exact strings in DB).
const (
	PageStatusPending    PageStatus = "PENDING"    // registered, not picked up yet
	PageStatusExtracting PageStatus = "EXTRACTING" // worker running OCR
	PageStatusExtracted  PageStatus = "EXTRACTED"  // fields parsed (possibly all absent)
	PageStatusNaming     PageStatus = "NAMING"     // resolving filename
	PageStatusNamed      PageStatus = "NAMED"      // terminal success
	PageStatusFailed     PageStatus = "FAILED"     // terminal failure
)

// Rank orders statuses along the state machine. NAMED and FAILED share the
// terminal rank.
func (s PageStatus) Rank() int {
	switch s {
	case PageStatusPending:
		return 0
	case PageStatusExtracting:
		return 1
	case PageStatusExtracted:
		return 2
	case PageStatusNaming:
		return 3
	case PageStatusNamed, PageStatusFailed:
		return 4
	default:
		return -1
	}
}

// Terminal reports whether no further transition is allowed.
func (s PageStatus) Terminal() bool {
	return s == PageStatusNamed || s == PageStatusFailed
}

// Valid reports whether s is a known page status.
func (s PageStatus) Valid() bool { return s.Rank() >= 0 }

// BatchStatus is the aggregate status of a batch, always derived from its pages.
type BatchStatus string

const (
	BatchStatusInProgress     BatchStatus = "IN_PROGRESS"
	BatchStatusAllSucceeded   BatchStatus = "ALL_SUCCEEDED"
	BatchStatusPartialSuccess BatchStatus = "PARTIAL_SUCCESS"
	BatchStatusAllFailed      BatchStatus = "ALL_FAILED"
)

// Done reports whether the batch reached a final outcome.
func (s BatchStatus) Done() bool { return s != BatchStatusInProgress && s != "" }

// ErrorKind classifies page-scoped and batch-scoped failures.
type ErrorKind string

const (
	ErrorKindCorruptDocument ErrorKind = "CORRUPT_DOCUMENT"
	ErrorKindExtraction      ErrorKind = "EXTRACTION_ERROR"
	ErrorKindNaming          ErrorKind = "NAMING_ERROR"
	ErrorKindCancelled       ErrorKind = "CANCELLED"
)
