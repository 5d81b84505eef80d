package constants

// FrenchMonths maps accent-free upper-case French month names to their number.
var FrenchMonths = map[string]int{
	"JANVIER":   1,
	"FEVRIER":   2,
	"MARS":      3,
	"AVRIL":     4,
	"MAI":       5,
	"JUIN":      6,
	"JUILLET":   7,
	"AOUT":      8,
	"SEPTEMBRE": 9,
	"OCTOBRE":   10,
	"NOVEMBRE":  11,
	"DECEMBRE":  12,
}

// Placeholder replaces any field that could not be extracted in a filename.
const Placeholder = "UNKNOWN"
