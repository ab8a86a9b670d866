package model

import (
	"fmt"
	"regexp"
	"strings"
)

// LineBreak is a normalization policy applied to text before it is saved.
type LineBreak struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

var (
	LF   = LineBreak{Name: "LF", Regex: regexp.MustCompile(`\r\n|\r`), Replacement: "\n"}
	CRLF = LineBreak{Name: "CRLF", Regex: regexp.MustCompile(`\r\n|\r|\n`), Replacement: "\r\n"}
	CR   = LineBreak{Name: "CR", Regex: regexp.MustCompile(`\r\n|\n`), Replacement: "\r"}
)

func ParseLineBreak(name string) (LineBreak, error) {
	switch strings.ToUpper(name) {
	case "LF", "":
		return LF, nil
	case "CRLF":
		return CRLF, nil
	case "CR":
		return CR, nil
	}
	return LineBreak{}, fmt.Errorf("unknown line break: %q", name)
}

// Apply normalizes every line ending in text. A zero policy leaves text untouched.
func (lb LineBreak) Apply(text string) string {
	if lb.Regex == nil {
		return text
	}
	return lb.Regex.ReplaceAllString(text, lb.Replacement)
}

// FileParams controls how text is decoded on load and encoded on save.
type FileParams struct {
	Charset   string
	Chardet   bool
	LineBreak LineBreak
}

func DefaultParams() FileParams {
	return FileParams{
		Charset:   "UTF-8",
		LineBreak: LF,
	}
}
