// Package extract turns lecture files into an ordered list of positioned
// text sections: pages for PDF, heading sections for markdown and
// form-feed pages or paragraphs for plain text.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Section is the text at one position of a lecture. Positions start at 1.
type Section struct {
	Position int
	Text     string
}

// Document is an extracted lecture.
type Document struct {
	Sections  []Section
	PageCount int
}

// Extractor reads one file format.
type Extractor interface {
	Extract(data []byte) (*Document, error)
}

// Supported reports whether ForFile can handle name.
func Supported(name string) bool {
	_, err := ForFile(name)
	return err == nil
}

// ForFile picks an extractor by file extension.
func ForFile(name string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return NewMarkdown(), nil
	case ".pdf":
		return PDF{}, nil
	case ".txt":
		return Text{}, nil
	default:
		return nil, fmt.Errorf("unsupported lecture file type %q", filepath.Ext(name))
	}
}

// Piece is a chunk-sized slice of a section.
type Piece struct {
	Position int
	Seq      int
	Text     string
}

// Split emits one piece per non-empty section. Sections longer than 1.5x
// chunkSize characters are cut into runs of chunkSize/5 words that keep the
// section's position. Seq numbers pieces across the whole document.
func Split(sections []Section, chunkSize int) []Piece {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	wordsPerPiece := max(chunkSize/5, 1)

	var pieces []Piece
	for _, s := range sections {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if float64(utf8.RuneCountInString(text)) <= 1.5*float64(chunkSize) {
			pieces = append(pieces, Piece{Position: s.Position, Seq: len(pieces), Text: text})
			continue
		}
		words := strings.Fields(text)
		for i := 0; i < len(words); i += wordsPerPiece {
			end := min(i+wordsPerPiece, len(words))
			pieces = append(pieces, Piece{Position: s.Position, Seq: len(pieces), Text: strings.Join(words[i:end], " ")})
		}
	}
	return pieces
}

// cleanText collapses runs of blank space on each line and drops empty lines.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
