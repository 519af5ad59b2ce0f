// Package svg validates and normalizes inline SVG source text.
//
// The rest of the system treats SVG source as an opaque string; this package
// is the single place that decides whether a string is usable as an asset's
// textual source.
package svg

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// ErrNotWellFormed is returned when the source does not parse as XML.
var ErrNotWellFormed = errors.New("svg: source is not well-formed XML")

// ErrNotSVG is returned when the source parses but its root element is not <svg>.
var ErrNotSVG = errors.New("svg: root element is not <svg>")

// ErrEmpty is returned when the source is empty or whitespace only.
var ErrEmpty = errors.New("svg: source is empty")

// Validate checks that source is non-empty, well-formed XML whose root
// element is <svg>. It scans the full token stream so trailing garbage after
// the root element is rejected too.
func Validate(source string) error {
	if strings.TrimSpace(source) == "" {
		return ErrEmpty
	}

	dec := xml.NewDecoder(strings.NewReader(source))
	sawRoot := false
	depth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ErrNotWellFormed
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !sawRoot {
				if !strings.EqualFold(t.Name.Local, "svg") {
					return ErrNotSVG
				}
				sawRoot = true
			} else if depth == 0 {
				// A second element after the root closed means more than
				// one top-level element.
				return ErrNotWellFormed
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			// The tokenizer hands out top-level text without complaint;
			// a document with text outside the root is not well-formed.
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return ErrNotWellFormed
			}
		}
	}

	if !sawRoot {
		return ErrNotSVG
	}
	return nil
}

// Filename derives an upload filename from a display name. The result always
// carries a .svg extension; an empty name falls back to "untitled.svg".
func Filename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled.svg"
	}

	name = strings.ReplaceAll(name, " ", "-")
	if !strings.HasSuffix(strings.ToLower(name), ".svg") {
		name += ".svg"
	}
	return name
}
