// Package subtitle holds the timed-text content model for a single version.
package subtitle

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Item is one subtitle cue. Start and End are in milliseconds; nil means the
// cue has not been synced to the video yet.
type Item struct {
	StartMS *int   `json:"start_ms"`
	EndMS   *int   `json:"end_ms"`
	Text    string `json:"text"`
}

// Set is the complete subtitle content for one language.
type Set struct {
	LanguageCode string `json:"language_code"`
	Items        []Item `json:"items"`
}

// Empty returns a set with no cues for the language.
func Empty(languageCode string) *Set {
	return &Set{LanguageCode: languageCode, Items: []Item{}}
}

// FromItems builds a set from already-parsed cues.
func FromItems(languageCode string, items []Item) *Set {
	if items == nil {
		items = []Item{}
	}
	return &Set{LanguageCode: languageCode, Items: items}
}

// FromRawMarkup parses a TTML/DFXP document into a set. Only the subset fern
// writes is understood: p elements with begin/end attributes under any depth
// of div nesting.
func FromRawMarkup(languageCode string, markup string) (*Set, error) {
	var doc ttmlDocument
	if err := xml.Unmarshal([]byte(markup), &doc); err != nil {
		return nil, fmt.Errorf("invalid timed-text markup: %w", err)
	}

	items := make([]Item, 0, len(doc.Body.Paragraphs()))
	for _, p := range doc.Body.Paragraphs() {
		start, err := parseTimeExpression(p.Begin)
		if err != nil {
			return nil, fmt.Errorf("invalid begin time %q: %w", p.Begin, err)
		}
		end, err := parseTimeExpression(p.End)
		if err != nil {
			return nil, fmt.Errorf("invalid end time %q: %w", p.End, err)
		}
		items = append(items, Item{StartMS: start, EndMS: end, Text: strings.TrimSpace(p.Text)})
	}

	return &Set{LanguageCode: languageCode, Items: items}, nil
}

// Len returns the cue count, which is denormalized onto versions.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}

// IsSynced reports whether every cue has both timestamps.
func (s *Set) IsSynced() bool {
	for _, item := range s.Items {
		if item.StartMS == nil || item.EndMS == nil {
			return false
		}
	}
	return true
}

// ToMarkup renders the set as a minimal TTML document.
func (s *Set) ToMarkup() string {
	var b strings.Builder
	b.WriteString(`<tt xmlns="http://www.w3.org/ns/ttml" xml:lang="` + xmlEscape(s.LanguageCode) + "\">\n")
	b.WriteString("  <body>\n    <div>\n")
	for _, item := range s.Items {
		b.WriteString("      <p")
		if item.StartMS != nil {
			b.WriteString(fmt.Sprintf(` begin="%s"`, formatTimeExpression(*item.StartMS)))
		}
		if item.EndMS != nil {
			b.WriteString(fmt.Sprintf(` end="%s"`, formatTimeExpression(*item.EndMS)))
		}
		b.WriteString(">" + xmlEscape(item.Text) + "</p>\n")
	}
	b.WriteString("    </div>\n  </body>\n</tt>\n")
	return b.String()
}

type ttmlDocument struct {
	XMLName xml.Name `xml:"tt"`
	Body    ttmlBody `xml:"body"`
}

type ttmlBody struct {
	Divs []ttmlDiv `xml:"div"`
	Ps   []ttmlP   `xml:"p"`
}

type ttmlDiv struct {
	Divs []ttmlDiv `xml:"div"`
	Ps   []ttmlP   `xml:"p"`
}

type ttmlP struct {
	Begin string `xml:"begin,attr"`
	End   string `xml:"end,attr"`
	Text  string `xml:",chardata"`
}

func (b ttmlBody) Paragraphs() []ttmlP {
	ps := append([]ttmlP{}, b.Ps...)
	for _, d := range b.Divs {
		ps = append(ps, d.paragraphs()...)
	}
	return ps
}

func (d ttmlDiv) paragraphs() []ttmlP {
	ps := append([]ttmlP{}, d.Ps...)
	for _, child := range d.Divs {
		ps = append(ps, child.paragraphs()...)
	}
	return ps
}

var clockTimeRe = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})(?:\.(\d{1,3}))?$`)

// parseTimeExpression accepts clock times ("00:01:02.500"), second offsets
// ("62.5s"), millisecond offsets ("62500ms"), or an empty string (unsynced).
func parseTimeExpression(expr string) (*int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	if m := clockTimeRe.FindStringSubmatch(expr); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		millis := 0
		if m[4] != "" {
			frac := m[4] + strings.Repeat("0", 3-len(m[4]))
			millis, _ = strconv.Atoi(frac)
		}
		total := ((hours*60+minutes)*60+seconds)*1000 + millis
		return &total, nil
	}

	if strings.HasSuffix(expr, "ms") {
		v, err := strconv.Atoi(strings.TrimSuffix(expr, "ms"))
		if err != nil {
			return nil, err
		}
		return &v, nil
	}

	if strings.HasSuffix(expr, "s") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(expr, "s"), 64)
		if err != nil {
			return nil, err
		}
		ms := int(v * 1000)
		return &ms, nil
	}

	return nil, fmt.Errorf("unrecognized time expression")
}

func formatTimeExpression(ms int) string {
	hours := ms / 3600000
	minutes := (ms % 3600000) / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
