package naming

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// MaxFilenameBytes is the usual filesystem limit for one path element.
const MaxFilenameBytes = 255

var reUnsafe = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// Resolver derives Identifier_SURNAME_GivenName_MMYY<ext> filenames.
type Resolver struct {
	ext    string
	logger *slog.Logger
}

func NewResolver(ext string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if ext == "" {
		ext = constants.DefaultPageExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Resolver{ext: ext, logger: logger}
}

// Ext is the extension appended to every name.
func (r *Resolver) Ext() string { return r.ext }

// Stem builds the canonical name without suffix or extension. Missing fields
// become the placeholder so the pattern always has four parts.
func (r *Resolver) Stem(f entity.ExtractedFields) string {
	return strings.Join([]string{
		component(f.Identifier, strings.ToUpper),
		component(f.Surname, strings.ToUpper),
		component(f.GivenName, titleCase),
		component(f.Period, strings.ToUpper),
	}, "_")
}

// Resolve claims the canonical name of page in names and returns it, with a
// "_N" suffix when lower pages already hold the same name.
func (r *Resolver) Resolve(page int, f entity.ExtractedFields, names *NameSet) (string, error) {
	stem := r.Stem(f)
	if len(stem)+len(r.ext) > MaxFilenameBytes {
		return "", &common.NamingError{Page: page, Cause: fmt.Errorf("name exceeds %d bytes", MaxFilenameBytes)}
	}
	name, err := names.Claim(page, stem, r.ext)
	if err != nil {
		return "", &common.NamingError{Page: page, Cause: err}
	}
	if len(name) > MaxFilenameBytes {
		names.Release(page)
		return "", &common.NamingError{Page: page, Cause: fmt.Errorf("name exceeds %d bytes", MaxFilenameBytes)}
	}
	r.logger.Debug("naming.page.resolved", "page", page, "filename", name)
	return name, nil
}

func component(f entity.Field, style func(string) string) string {
	if !f.Present() {
		return constants.Placeholder
	}
	v := strings.Trim(reUnsafe.ReplaceAllString(f.Value, "-"), "-")
	if v == "" {
		return constants.Placeholder
	}
	return style(v)
}

// titleCase capitalizes each hyphen-separated part: JEAN-PIERRE -> Jean-Pierre.
func titleCase(s string) string {
	caser := cases.Title(language.French)
	parts := strings.Split(s, "-")
	for i, p := range parts {
		parts[i] = caser.String(p)
	}
	return strings.Join(parts, "-")
}
