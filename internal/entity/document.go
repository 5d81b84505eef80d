package entity

// SourceDocument is the multi-page document submitted by a client.
type SourceDocument struct {
	Name    string `json:"name"`
	Content []byte `json:"-"`
}

// PageImage is a single-page document cut from a SourceDocument.
// Index is 1-based and follows the original page order.
type PageImage struct {
	Index      int    `json:"index"`
	Content    []byte `json:"-"`
	SourceName string `json:"source_name"`
}
