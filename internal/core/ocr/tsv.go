package ocr

import (
	"strconv"
	"strings"
)

// tesseract TSV columns:
// level page_num block_num par_num line_num word_num left top width height conf text
const (
	tsvLevel = iota
	tsvPage
	tsvBlock
	tsvPar
	tsvLine
	tsvWord
	tsvLeft
	tsvTop
	tsvWidth
	tsvHeight
	tsvConf
	tsvText
	tsvColumns
)

const wordLevel = 5

// ParseTSV extracts word rows in emission order, which is tesseract's
// reading order. Rows without text or with conf -1 are skipped.
func ParseTSV(out string) []Word {
	var words []Word
	for i, ln := range strings.Split(out, "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < tsvColumns {
			continue
		}
		if atoi(cols[tsvLevel]) != wordLevel {
			continue
		}
		text := strings.TrimSpace(cols[tsvText])
		if text == "" || cols[tsvConf] == "-1" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[tsvConf], 64)
		if err != nil {
			continue
		}
		words = append(words, Word{
			Text:       text,
			Block:      atoi(cols[tsvBlock]),
			Par:        atoi(cols[tsvPar]),
			Line:       atoi(cols[tsvLine]),
			Left:       atoi(cols[tsvLeft]),
			Top:        atoi(cols[tsvTop]),
			Width:      atoi(cols[tsvWidth]),
			Height:     atoi(cols[tsvHeight]),
			Confidence: clamp01(float32(conf / 100.0)),
		})
	}
	return words
}

// TextFromWords rebuilds text with one output line per tesseract line.
func TextFromWords(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			prev := words[i-1]
			if prev.Block != w.Block || prev.Par != w.Par || prev.Line != w.Line {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w.Text)
	}
	return b.String()
}

// MeanConfidence returns the mean word confidence, 0 for no words.
func MeanConfidence(words []Word) float32 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += float64(w.Confidence)
	}
	return float32(sum / float64(len(words)))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func clamp01(f float32) float32 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
