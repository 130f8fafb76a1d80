package actions

import (
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
)

// Summary buffers HTML and markdown for the job summary page. Add methods
// return the receiver so calls chain.
type Summary struct {
	host *Host
	buf  strings.Builder
}

// Summary returns the host's summary buffer.
func (h *Host) Summary() *Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.summary == nil {
		h.summary = &Summary{host: h}
	}
	return h.summary
}

// SummaryTableCell is one cell of AddTable.
type SummaryTableCell struct {
	Data    string
	Header  bool
	Colspan int
	Rowspan int
}

// SummaryImageOptions sizes an image in pixels. Zero values are omitted.
type SummaryImageOptions struct {
	Width  int
	Height int
}

// WriteOptions controls Write.
type WriteOptions struct {
	// Overwrite replaces the file instead of appending to it.
	Overwrite bool
}

type attr struct {
	key   string
	value string
}

func wrap(tag, content string, attrs ...attr) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(tag)
	for _, a := range attrs {
		fmt.Fprintf(&b, ` %s="%s"`, a.key, html.EscapeString(a.value))
	}
	b.WriteByte('>')
	if content == "" {
		return b.String()
	}
	b.WriteString(content)
	b.WriteString("</" + tag + ">")
	return b.String()
}

func (s *Summary) filePath() (string, error) {
	path := s.host.getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		return "", errors.New("unable to find environment variable for $GITHUB_STEP_SUMMARY; check if your runtime environment supports job summaries")
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("unable to access summary file %q; check if the file has correct read/write permissions: %w", path, err)
	}
	_ = f.Close()
	return path, nil
}

// Write flushes the buffer to $GITHUB_STEP_SUMMARY and empties it.
func (s *Summary) Write(opts WriteOptions) error {
	path, err := s.filePath()
	if err != nil {
		return err
	}
	flag := os.O_WRONLY | os.O_APPEND
	if opts.Overwrite {
		flag = os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return fmt.Errorf("opening summary file: %w", err)
	}
	if _, err := f.WriteString(s.buf.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing summary file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing summary file: %w", err)
	}
	s.EmptyBuffer()
	return nil
}

// Clear empties both the buffer and the summary file.
func (s *Summary) Clear() error {
	return s.EmptyBuffer().Write(WriteOptions{Overwrite: true})
}

// String returns the buffer.
func (s *Summary) String() string {
	return s.buf.String()
}

// IsEmptyBuffer reports whether nothing has been added since the last
// write.
func (s *Summary) IsEmptyBuffer() bool {
	return s.buf.Len() == 0
}

// EmptyBuffer drops the buffer without writing it.
func (s *Summary) EmptyBuffer() *Summary {
	s.buf.Reset()
	return s
}

// AddRaw appends text as is.
func (s *Summary) AddRaw(text string, addEOL bool) *Summary {
	s.buf.WriteString(text)
	if addEOL {
		s.AddEOL()
	}
	return s
}

// AddEOL appends a line break.
func (s *Summary) AddEOL() *Summary {
	return s.AddRaw(eol, false)
}

// AddCodeBlock appends a pre/code block, highlighted as lang if set.
func (s *Summary) AddCodeBlock(code, lang string) *Summary {
	var attrs []attr
	if lang != "" {
		attrs = append(attrs, attr{"lang", lang})
	}
	return s.AddRaw(wrap("pre", wrap("code", code), attrs...), true)
}

// AddList appends a bulleted or numbered list.
func (s *Summary) AddList(items []string, ordered bool) *Summary {
	tag := "ul"
	if ordered {
		tag = "ol"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString(wrap("li", item))
	}
	return s.AddRaw(wrap(tag, b.String()), true)
}

// AddTable appends a table.
func (s *Summary) AddTable(rows [][]SummaryTableCell) *Summary {
	var body strings.Builder
	for _, row := range rows {
		var cells strings.Builder
		for _, c := range row {
			tag := "td"
			if c.Header {
				tag = "th"
			}
			var attrs []attr
			if c.Colspan > 0 {
				attrs = append(attrs, attr{"colspan", strconv.Itoa(c.Colspan)})
			}
			if c.Rowspan > 0 {
				attrs = append(attrs, attr{"rowspan", strconv.Itoa(c.Rowspan)})
			}
			cells.WriteString(wrap(tag, c.Data, attrs...))
		}
		body.WriteString(wrap("tr", cells.String()))
	}
	return s.AddRaw(wrap("table", body.String()), true)
}

// AddDetails appends a collapsible section.
func (s *Summary) AddDetails(label, content string) *Summary {
	return s.AddRaw(wrap("details", wrap("summary", label)+content), true)
}

// AddImage appends an image.
func (s *Summary) AddImage(src, alt string, opts SummaryImageOptions) *Summary {
	attrs := []attr{{"src", src}, {"alt", alt}}
	if opts.Width > 0 {
		attrs = append(attrs, attr{"width", strconv.Itoa(opts.Width)})
	}
	if opts.Height > 0 {
		attrs = append(attrs, attr{"height", strconv.Itoa(opts.Height)})
	}
	return s.AddRaw(wrap("img", "", attrs...), true)
}

// AddHeading appends a heading. Levels outside 1-6 become 1.
func (s *Summary) AddHeading(text string, level int) *Summary {
	if level < 1 || level > 6 {
		level = 1
	}
	return s.AddRaw(wrap("h"+strconv.Itoa(level), text), true)
}

// AddSeparator appends a horizontal rule.
func (s *Summary) AddSeparator() *Summary {
	return s.AddRaw(wrap("hr", ""), true)
}

// AddBreak appends a line break element.
func (s *Summary) AddBreak() *Summary {
	return s.AddRaw(wrap("br", ""), true)
}

// AddQuote appends a block quote, citing cite if set.
func (s *Summary) AddQuote(text, cite string) *Summary {
	var attrs []attr
	if cite != "" {
		attrs = append(attrs, attr{"cite", cite})
	}
	return s.AddRaw(wrap("blockquote", text, attrs...), true)
}

// AddLink appends a link.
func (s *Summary) AddLink(text, href string) *Summary {
	return s.AddRaw(wrap("a", text, attr{"href", href}), true)
}
