// Package region isolates the machine-owned portion of a document. Everything
// outside the marker pair is human prose and is never rewritten.
package region

import "strings"

const (
	DefaultBeginMarker = "<!-- STORYKEEPER:BEGIN AUTO -->"
	DefaultEndMarker   = "<!-- STORYKEEPER:END AUTO -->"
)

// Codec splits and replaces the single machine-owned region delimited by a
// begin/end marker pair.
type Codec struct {
	Begin string
	End   string
}

func NewCodec(begin, end string) Codec {
	if begin == "" {
		begin = DefaultBeginMarker
	}
	if end == "" {
		end = DefaultEndMarker
	}
	return Codec{Begin: begin, End: end}
}

// Parts is the result of splitting a document around its protected region.
// Preamble and Epilogue include the markers themselves, so that
// Preamble + Region + Epilogue reassembles the document byte for byte.
type Parts struct {
	Preamble string
	Region   string
	Epilogue string
	Found    bool
}

// Split divides a document into human-owned preamble/epilogue and the
// machine-owned region. When markers are absent the whole document is treated
// as human-owned: this is the fail-safe that keeps human prose from ever being
// mistaken for generated content.
func (c Codec) Split(doc string) Parts {
	begin := strings.Index(doc, c.Begin)
	if begin < 0 {
		return Parts{Preamble: doc}
	}
	regionStart := begin + len(c.Begin)
	end := strings.Index(doc[regionStart:], c.End)
	if end < 0 {
		return Parts{Preamble: doc}
	}
	regionEnd := regionStart + end
	return Parts{
		Preamble: doc[:regionStart],
		Region:   doc[regionStart:regionEnd],
		Epilogue: doc[regionEnd:],
		Found:    true,
	}
}

// Replace swaps the protected region for content, leaving preamble and
// epilogue byte-identical. When no markers exist the new region is appended
// at the end of the document with fresh markers; existing text is never
// overwritten or pushed below generated content.
func (c Codec) Replace(doc, content string) string {
	parts := c.Split(doc)
	if !parts.Found {
		var b strings.Builder
		b.WriteString(doc)
		if doc != "" && !strings.HasSuffix(doc, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(c.Begin)
		b.WriteString(content)
		b.WriteString(c.End)
		b.WriteString("\n")
		return b.String()
	}
	return parts.Preamble + content + parts.Epilogue
}
