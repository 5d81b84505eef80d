package fields

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/common"
	"github.com/joseph-ayodele/payslip-splitter/internal/core/ocr"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

type fakeRecognizer struct {
	rec   ocr.Recognition
	err   error
	calls int
}

func (f *fakeRecognizer) Recognize(context.Context, []byte) (ocr.Recognition, error) {
	f.calls++
	return f.rec, f.err
}

func textLayer(text string) ocr.Recognition {
	return ocr.Recognition{Text: text, Method: constants.MethodPDFText, Confidence: 1}
}

const duPontPage = `SOCIETE EXEMPLE SAS
BULLETIN DE PAIE
DUPONT Jean 12345
Période du 01/01/25 au 31/01/25
Salaire de base 2 000,00`

func TestParseHeaderLine(t *testing.T) {
	f := Parse(textLayer(duPontPage), Config{})
	assert.Equal(t, "12345", f.Identifier.Value)
	assert.Equal(t, "DUPONT", f.Surname.Value)
	assert.Equal(t, "JEAN", f.GivenName.Value)
	assert.Equal(t, "0125", f.Period.Value)
	for _, fld := range []entity.Field{f.Identifier, f.Surname, f.GivenName, f.Period} {
		assert.Equal(t, constants.FieldValid, fld.State)
	}
	assert.Equal(t, 4, f.Matched())
	assert.Equal(t, constants.MethodPDFText, f.Method)
}

func TestParseLabels(t *testing.T) {
	text := `Bulletin de salaire
Matricule : 123
Nom : Lefèvre-Château Prénom : Élodie Marie
Période : Février 2024`
	f := Parse(textLayer(text), Config{})
	assert.Equal(t, "00123", f.Identifier.Value)
	assert.Equal(t, "LEFEVRE-CHATEAU", f.Surname.Value)
	assert.Equal(t, "ELODIE-MARIE", f.GivenName.Value)
	assert.Equal(t, "0224", f.Period.Value)
}

func TestParseEmployerAddressIsNotTheEmployee(t *testing.T) {
	text := `ACME SAS
12 RUE DE LA PAIX 75002 PARIS
BULLETIN DE PAIE
DUPONT Jean 12345
Période du 01/01/25 au 31/01/25`
	f := Parse(textLayer(text), Config{})
	assert.Equal(t, "12345", f.Identifier.Value)
	assert.Equal(t, "DUPONT", f.Surname.Value)
	assert.Equal(t, "JEAN", f.GivenName.Value)
	assert.Equal(t, "0125", f.Period.Value)
}

func TestParseHeaderLineKeepsAccentsOutOfNames(t *testing.T) {
	text := "SOCIETE DU MIDI 31000 TOULOUSE\nLEFÈVRE Élodie-Marie 4521"
	f := Parse(textLayer(text), Config{})
	assert.Equal(t, "LEFEVRE", f.Surname.Value)
	assert.Equal(t, "ELODIE-MARIE", f.GivenName.Value)
	assert.Equal(t, "04521", f.Identifier.Value)
}

func TestParseAllCapsLineIsNotAHeader(t *testing.T) {
	f := Parse(textLayer("DUPONT JEAN 12345"), Config{})
	assert.Equal(t, constants.FieldMissing, f.Surname.State)
	assert.Equal(t, constants.FieldMissing, f.GivenName.State)
	// the identifier still comes from the standalone fallback
	assert.Equal(t, "12345", f.Identifier.Value)
}

func TestParseStandaloneIdentifierWidth(t *testing.T) {
	for i := 0; i < 2; i++ {
		f := Parse(textLayer("Code 123456"), Config{IdentifierWidth: 6})
		assert.Equal(t, "123456", f.Identifier.Value)
	}
	f := Parse(textLayer("Code 123456"), Config{})
	assert.Equal(t, constants.FieldMissing, f.Identifier.State)
}

func TestParseLabelBeatsHeaderLine(t *testing.T) {
	text := "MARTIN Paul 54321\nMatricule: 777"
	f := Parse(textLayer(text), Config{})
	assert.Equal(t, "00777", f.Identifier.Value)
	assert.Equal(t, "MARTIN", f.Surname.Value)
}

func TestParseFirstMatchInReadingOrder(t *testing.T) {
	text := "DURAND Luc 11111\nBERNARD Anne 22222"
	f := Parse(textLayer(text), Config{})
	assert.Equal(t, "11111", f.Identifier.Value)
	assert.Equal(t, "DURAND", f.Surname.Value)
}

func TestParseSkipsBoilerplateLines(t *testing.T) {
	text := "BULLETIN DE PAIE JANVIER 2025\nDUPONT Jean 12345"
	f := Parse(textLayer(text), Config{})
	assert.Equal(t, "DUPONT", f.Surname.Value)
	assert.Equal(t, "0125", f.Period.Value)
}

func TestParseStandaloneIdentifierAndNumericPeriod(t *testing.T) {
	text := "Ref 2 000,00\nCode 40213\nPaie 03/2024"
	f := Parse(textLayer(text), Config{})
	assert.Equal(t, "40213", f.Identifier.Value)
	assert.Equal(t, constants.FieldMissing, f.Surname.State)
	assert.Equal(t, constants.FieldMissing, f.GivenName.State)
	assert.Equal(t, "0324", f.Period.Value)
}

func TestParseNothingMatched(t *testing.T) {
	f := Parse(textLayer("lorem ipsum"), Config{})
	assert.Zero(t, f.Matched())
	assert.Equal(t, constants.FieldMissing, f.Identifier.State)
	assert.Equal(t, constants.FieldMissing, f.Period.State)
}

func TestParseRejectsInvalidMonth(t *testing.T) {
	f := Parse(textLayer("Période du 01/13/25 au 31/13/25"), Config{})
	assert.Equal(t, constants.FieldMissing, f.Period.State)
}

func TestParseLowConfidenceFromWords(t *testing.T) {
	rec := ocr.Recognition{
		Text:       "DUPONT Jean 12345",
		Method:     constants.MethodPDFOCR,
		Confidence: 0.7,
		Words: []ocr.Word{
			{Text: "DUPONT", Confidence: 0.95},
			{Text: "Jean", Confidence: 0.4},
			{Text: "12345", Confidence: 0.9},
		},
	}
	f := Parse(rec, Config{})
	assert.Equal(t, constants.FieldValid, f.Surname.State)
	assert.Equal(t, constants.FieldLowConfidence, f.GivenName.State)
	assert.InDelta(t, 0.4, f.GivenName.Confidence, 0.001)
	assert.Equal(t, "JEAN", f.GivenName.Value)
	// no word carries the period, so the page confidence applies
	assert.Equal(t, constants.FieldMissing, f.Period.State)
}

func TestExtractIsIdempotent(t *testing.T) {
	r := &fakeRecognizer{rec: textLayer(duPontPage)}
	x := NewExtractor(r, Config{}, nil)
	page := entity.PageImage{Index: 1, Content: []byte("%PDF")}
	a, err := x.Extract(context.Background(), page)
	require.NoError(t, err)
	b, err := x.Extract(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 2, r.calls)
}

func TestExtractErrors(t *testing.T) {
	x := NewExtractor(&fakeRecognizer{}, Config{}, nil)
	_, err := x.Extract(context.Background(), entity.PageImage{Index: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrExtraction))

	x = NewExtractor(&fakeRecognizer{err: errors.New("tesseract: exit 1")}, Config{}, nil)
	_, err = x.Extract(context.Background(), entity.PageImage{Index: 2, Content: []byte("x")})
	var ee *common.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.Page)
}

func TestNormalizationIsIdempotent(t *testing.T) {
	for _, s := range []string{"Lefèvre  Château", "Œuvre", "Strauß", "d'Artagnan"} {
		once := NormalizeName(s)
		assert.Equal(t, once, NormalizeName(once), s)
	}
	assert.Equal(t, "OEUVRE", NormalizeName("Œuvre"))
	assert.Equal(t, "STRAUSS", NormalizeName("Strauß"))

	assert.Equal(t, "00042", NormalizeIdentifier("42", 5))
	assert.Equal(t, "00042", NormalizeIdentifier("00042", 5))
	assert.Equal(t, "12345", NormalizeIdentifier("0012345", 5))
	assert.Equal(t, "123456", NormalizeIdentifier("123456", 5))

	assert.Equal(t, "0125", NormalizePeriod(1, 2025))
	assert.Equal(t, "1224", NormalizePeriod(12, 24))
}
