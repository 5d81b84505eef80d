package fields

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/ocr"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

// All patterns but reNameLine run on folded (accent-free, upper-case) lines.
var (
	reIDLabel = regexp.MustCompile(`(?:^|[^A-Z])(?:MATRICULE|MATR\.|IDENTIFIANT|N[°º]?\s*SALARIE|NO\s+SALARIE)\s*[:#.]?\s*(\d+)\b`)

	// "DUPONT Jean 12345", the usual header line of a payslip. It runs on
	// accent-free text with case kept: the given name must be title-case, so
	// all-caps address lines never match.
	reNameLine = regexp.MustCompile(`\b([A-Z][A-Z'-]*(?: [A-Z][A-Z'-]*)*)[ ]+([A-Z][a-z]+(?:-[A-Z][a-z]+)*)[ ]+(\d{4,5})\b`)

	reSurnameLabel = regexp.MustCompile(`(?:^|[^A-Z])NOM(?: DE FAMILLE)?\s*:\s*([A-Z][A-Z' -]*[A-Z])`)
	reGivenLabel   = regexp.MustCompile(`(?:^|[^A-Z])PRENOMS?\s*:\s*([A-Z][A-Z' -]*[A-Z])`)

	rePeriodDates = []*regexp.Regexp{
		regexp.MustCompile(`PERIODE\s+DU\s+(\d{2})/(\d{2})/(\d{4}|\d{2})\b`),
		regexp.MustCompile(`\bDU\s+(\d{2})/(\d{2})/(\d{4}|\d{2})\s+AU\b`),
		regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4}|\d{2})\s+A\s+\d{2}/\d{2}/\d{2,4}\b`),
	}
	rePeriodMonthName = regexp.MustCompile(`\b(JANVIER|FEVRIER|MARS|AVRIL|MAI|JUIN|JUILLET|AOUT|SEPTEMBRE|OCTOBRE|NOVEMBRE|DECEMBRE)[ ]*[-/]?[ ]*(\d{4})\b`)
	rePeriodNumeric   = regexp.MustCompile(`(?:^|[^\d/])(\d{2})/(\d{4})\b`)
)

// Words that only appear in payslip boilerplate; a name-line match containing
// one of them is a header, not an employee.
var stopWords = map[string]struct{}{
	"BULLETIN": {}, "PAIE": {}, "SALAIRE": {}, "PERIODE": {},
	"NET": {}, "BRUT": {}, "TOTAL": {}, "MATRICULE": {}, "NOM": {}, "PRENOM": {},
	"PRENOMS": {}, "EMPLOYEUR": {}, "SIRET": {}, "APE": {}, "URSSAF": {},
	"CODE": {}, "DATE": {}, "EMPLOI": {}, "COEFFICIENT": {}, "CONVENTION": {},
	"IDENTIFIANT": {}, "SALARIE": {}, "CUMUL": {}, "CUMULS": {}, "HEURES": {},
}

// Labels that end a labeled name value on the same line.
var labelWords = map[string]struct{}{
	"NOM": {}, "PRENOM": {}, "PRENOMS": {}, "MATRICULE": {}, "MATR": {},
	"IDENTIFIANT": {}, "SALARIE": {}, "EMPLOI": {}, "DATE": {}, "CODE": {},
	"QUALIFICATION": {}, "COEFFICIENT": {}, "N": {},
}

func init() {
	for m := range constants.FrenchMonths {
		stopWords[m] = struct{}{}
	}
}

type candidate struct {
	value string
	raw   string
}

type nameLine struct {
	surname, given, id candidate
}

// Parse applies the field rules to a recognition result. It is pure: the same
// recognition always yields the same fields.
func Parse(rec ocr.Recognition, cfg Config) entity.ExtractedFields {
	cfg = cfg.withDefaults()
	lines := strings.Split(Fold(rec.Text), "\n")
	nl, hasLine := findNameLine(strings.Split(StripAccents(rec.Text), "\n"))

	out := entity.ExtractedFields{
		Identifier: entity.Missing(),
		Surname:    entity.Missing(),
		GivenName:  entity.Missing(),
		Period:     entity.Missing(),
		Method:     rec.Method,
	}

	if c, ok := firstMatch(lines, reIDLabel); ok {
		out.Identifier = field(rec, cfg, NormalizeIdentifier(c.value, cfg.IdentifierWidth), c.raw)
	} else if hasLine {
		out.Identifier = field(rec, cfg, NormalizeIdentifier(nl.id.value, cfg.IdentifierWidth), nl.id.raw)
	} else if c, ok := standaloneIdentifier(lines, cfg.IdentifierWidth); ok {
		out.Identifier = field(rec, cfg, NormalizeIdentifier(c.value, cfg.IdentifierWidth), c.raw)
	}

	if c, ok := firstLabeledName(lines, reSurnameLabel); ok {
		out.Surname = field(rec, cfg, NormalizeName(c.value), c.raw)
	} else if hasLine {
		out.Surname = field(rec, cfg, NormalizeName(nl.surname.value), nl.surname.raw)
	}
	if c, ok := firstLabeledName(lines, reGivenLabel); ok {
		out.GivenName = field(rec, cfg, NormalizeName(c.value), c.raw)
	} else if hasLine {
		out.GivenName = field(rec, cfg, NormalizeName(nl.given.value), nl.given.raw)
	}

	if c, ok := findPeriod(lines); ok {
		out.Period = field(rec, cfg, c.value, c.raw)
	}
	return out
}

func field(rec ocr.Recognition, cfg Config, value, raw string) entity.Field {
	if value == "" {
		return entity.Missing()
	}
	conf := confidenceOf(rec, raw)
	state := constants.FieldValid
	if conf < cfg.LowConfidence {
		state = constants.FieldLowConfidence
	}
	return entity.Field{Value: value, State: state, Confidence: conf}
}

// confidenceOf averages the confidence of the first recognized word matching
// each token of raw. Without word metadata the page confidence is used.
func confidenceOf(rec ocr.Recognition, raw string) float32 {
	tokens := strings.Fields(raw)
	var sum float32
	var n int
	for _, tok := range tokens {
		for _, w := range rec.Words {
			if strings.Trim(Fold(w.Text), ".,:;") == tok {
				sum += w.Confidence
				n++
				break
			}
		}
	}
	if n == 0 {
		return rec.Confidence
	}
	return sum / float32(n)
}

func firstMatch(lines []string, re *regexp.Regexp) (candidate, bool) {
	for _, ln := range lines {
		if m := re.FindStringSubmatch(ln); m != nil {
			return candidate{value: m[1], raw: m[1]}, true
		}
	}
	return candidate{}, false
}

// firstLabeledName returns the value after a name label, cut before the next
// label on the same line ("NOM : DUPONT PRENOM : JEAN").
func firstLabeledName(lines []string, re *regexp.Regexp) (candidate, bool) {
	for _, ln := range lines {
		m := re.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		var kept []string
		for _, tok := range strings.Fields(m[1]) {
			if _, stop := labelWords[strings.TrimRight(tok, ".")]; stop {
				break
			}
			kept = append(kept, tok)
		}
		if len(kept) == 0 {
			continue
		}
		v := strings.Join(kept, " ")
		return candidate{value: v, raw: v}, true
	}
	return candidate{}, false
}

func findNameLine(lines []string) (nameLine, bool) {
	for _, ln := range lines {
		m := reNameLine.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		surname, given := Fold(m[1]), Fold(m[2])
		if hasStopWord(surname) || hasStopWord(given) {
			continue
		}
		return nameLine{
			surname: candidate{value: surname, raw: surname},
			given:   candidate{value: given, raw: given},
			id:      candidate{value: m[3], raw: m[3]},
		}, true
	}
	return nameLine{}, false
}

func hasStopWord(s string) bool {
	for _, tok := range strings.Fields(s) {
		if _, ok := stopWords[tok]; ok {
			return true
		}
	}
	return false
}

// standalone patterns by identifier width
var standaloneRes sync.Map

func standaloneIdentifier(lines []string, width int) (candidate, bool) {
	re, ok := standaloneRes.Load(width)
	if !ok {
		re, _ = standaloneRes.LoadOrStore(width,
			regexp.MustCompile(`(?:^|[^\d/.,])(\d{`+strconv.Itoa(width)+`})(?:$|[^\d/.,])`))
	}
	return firstMatch(lines, re.(*regexp.Regexp))
}

func findPeriod(lines []string) (candidate, bool) {
	for _, re := range rePeriodDates {
		for _, ln := range lines {
			m := re.FindStringSubmatch(ln)
			if m == nil {
				continue
			}
			if p, ok := period(m[2], m[3]); ok {
				return candidate{value: p, raw: m[1] + "/" + m[2] + "/" + m[3]}, true
			}
		}
	}
	for _, ln := range lines {
		if m := rePeriodMonthName.FindStringSubmatch(ln); m != nil {
			if y, err := strconv.Atoi(m[2]); err == nil {
				return candidate{value: NormalizePeriod(constants.FrenchMonths[m[1]], y), raw: m[1] + " " + m[2]}, true
			}
		}
	}
	for _, ln := range lines {
		if m := rePeriodNumeric.FindStringSubmatch(ln); m != nil {
			if p, ok := period(m[1], m[2]); ok {
				return candidate{value: p, raw: m[1] + "/" + m[2]}, true
			}
		}
	}
	return candidate{}, false
}

func period(month, year string) (string, bool) {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "", false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", false
	}
	return NormalizePeriod(m, y), true
}
