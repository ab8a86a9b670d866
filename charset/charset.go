// Package charset detects, decodes and encodes text content and applies
// line-break policies. It is shared by every filesystem backend.
package charset

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"

	"editorfs/model"
)

const (
	UTF8 = "UTF-8"

	// sampleSize bounds how much content the detector looks at.
	sampleSize = 64 * 1024
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// chardet reports a few names that neither index knows.
var aliases = map[string]string{
	"gb-18030":   "gb18030",
	"ibm420_ltr": "ibm420",
	"ibm420_rtl": "ibm420",
	"ibm424_ltr": "ibm424",
	"ibm424_rtl": "ibm424",
}

// Detect guesses the charset of sample. Any detection failure yields UTF-8.
func Detect(sample []byte) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = UTF8
		}
	}()

	if len(sample) == 0 {
		return UTF8
	}
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || result == nil || result.Charset == "" {
		return UTF8
	}
	if _, err := lookup(result.Charset); err != nil {
		return UTF8
	}
	return result.Charset
}

func isUTF8(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == "" || n == "utf-8" || n == "utf8"
}

func lookup(name string) (encoding.Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[n]; ok {
		n = alias
	}
	if enc, err := htmlindex.Get(n); err == nil && enc != nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
	return enc, nil
}

// Decode converts data in the named charset to a Go string.
func Decode(data []byte, name string) (string, error) {
	if isUTF8(name) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	enc, err := lookup(name)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}

// Encode converts text to the named charset.
func Encode(text string, name string) ([]byte, error) {
	if isUTF8(name) {
		return []byte(text), nil
	}
	enc, err := lookup(name)
	if err != nil {
		return nil, err
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return out, nil
}

// Resolve picks the charset used to decode data under params.
func Resolve(data []byte, params model.FileParams) string {
	if params.Chardet {
		return Detect(data)
	}
	if params.Charset == "" {
		return UTF8
	}
	return params.Charset
}

// Load reads everything from r and decodes it according to params.
func Load(r io.Reader, params model.FileParams) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return Decode(data, Resolve(data, params))
}

// Prepare normalizes line breaks in text and encodes it with params.Charset.
func Prepare(text string, params model.FileParams) ([]byte, error) {
	return Encode(params.LineBreak.Apply(text), params.Charset)
}

// Save normalizes line breaks in text, encodes it with params.Charset and
// writes the result to w.
func Save(w io.Writer, text string, params model.FileParams) error {
	data, err := Prepare(text, params)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
