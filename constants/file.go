package constants

import "strings"

// PDF is the only accepted source and page format.
const PDF = "pdf"

// DefaultPageExt is appended to resolved page filenames.
const DefaultPageExt = ".pdf"

// AllowedExtensions holds the file extensions picked up by the inbox watcher.
var AllowedExtensions = map[string]struct{}{
	PDF: {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
