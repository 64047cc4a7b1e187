package network

import (
	"strings"
)

// declarationKeywords start a new top-level stanza in an ifupdown interfaces file
var declarationKeywords = map[string]bool{
	"iface":            true,
	"auto":             true,
	"mapping":          true,
	"source":           true,
	"source-directory": true,
	"rename":           true,
}

// Stanza is one top-level block of the interfaces file. Lines keep their original
// bytes including the line terminator. Kind is empty for loose text (blank lines,
// comments and anything before the first declaration).
type Stanza struct {
	Kind  string
	Name  string
	Lines []string
}

// InterfacesFile is the parsed form of /etc/network/interfaces.
// Render(Parse(x)) == x for every input.
type InterfacesFile struct {
	Stanzas []*Stanza
}

// ParseInterfaces splits content into stanzas. A stanza starts at a declaration line and
// ends at the next blank line or declaration.
func ParseInterfaces(content string) *InterfacesFile {
	file := &InterfacesFile{}
	var current *Stanza

	for _, line := range splitLines(content) {
		trimmed := strings.TrimSpace(line)
		fields := strings.Fields(trimmed)

		switch {
		case len(fields) > 0 && isDeclaration(fields[0]):
			current = &Stanza{Kind: fields[0], Lines: []string{line}}
			if len(fields) > 1 {
				current.Name = fields[1]
			}
			file.Stanzas = append(file.Stanzas, current)
		case trimmed == "":
			current = nil
			file.appendLoose(line)
		case current != nil:
			current.Lines = append(current.Lines, line)
		default:
			file.appendLoose(line)
		}
	}
	return file
}

// Render serializes the file back to text
func (f *InterfacesFile) Render() string {
	var b strings.Builder
	for _, s := range f.Stanzas {
		for _, line := range s.Lines {
			b.WriteString(line)
		}
	}
	return b.String()
}

// Iface returns the first "iface <name>" stanza, preferring the inet family
func (f *InterfacesFile) Iface(name string) *Stanza {
	var fallback *Stanza
	for _, s := range f.Stanzas {
		if s.Kind != "iface" || s.Name != name {
			continue
		}
		if s.Family() == "inet" {
			return s
		}
		if fallback == nil {
			fallback = s
		}
	}
	return fallback
}

func (f *InterfacesFile) appendLoose(line string) {
	if n := len(f.Stanzas); n > 0 && f.Stanzas[n-1].Kind == "" {
		f.Stanzas[n-1].Lines = append(f.Stanzas[n-1].Lines, line)
		return
	}
	f.Stanzas = append(f.Stanzas, &Stanza{Lines: []string{line}})
}

// Family returns the address family of an iface stanza ("inet", "inet6")
func (s *Stanza) Family() string {
	return s.headerField(2)
}

// Method returns the addressing method of an iface stanza ("static", "manual", ...)
func (s *Stanza) Method() string {
	return s.headerField(3)
}

func (s *Stanza) headerField(i int) string {
	if len(s.Lines) == 0 {
		return ""
	}
	fields := strings.Fields(s.Lines[0])
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// Find returns the index and value of the first option line whose key is one of keys.
// Index 0 (the header) is never an option.
func (s *Stanza) Find(keys ...string) (int, string, bool) {
	for i := 1; i < len(s.Lines); i++ {
		key, value, ok := optionOf(s.Lines[i])
		if !ok {
			continue
		}
		for _, k := range keys {
			if key == k {
				return i, value, true
			}
		}
	}
	return -1, "", false
}

// FindAll returns the indexes of every option line whose key is one of keys
func (s *Stanza) FindAll(keys ...string) []int {
	var found []int
	for i := 1; i < len(s.Lines); i++ {
		key, _, ok := optionOf(s.Lines[i])
		if !ok {
			continue
		}
		for _, k := range keys {
			if key == k {
				found = append(found, i)
				break
			}
		}
	}
	return found
}

// SetValue replaces the value of the option at index i, keeping indentation, key and line ending
func (s *Stanza) SetValue(i int, value string) {
	line := s.Lines[i]
	body, eol := splitEOL(line)
	indent := body[:len(body)-len(strings.TrimLeft(body, " \t"))]
	key, _, _ := optionOf(line)
	s.Lines[i] = indent + key + " " + value + eol
}

// InsertAfter inserts an option line after index i using the indentation of the stanza body
func (s *Stanza) InsertAfter(i int, key, value string) {
	ref := s.Lines[i]
	if i == 0 && len(s.Lines) > 1 {
		ref = s.Lines[1]
	}
	body, eol := splitEOL(ref)
	indent := body[:len(body)-len(strings.TrimLeft(body, " \t"))]
	if i == 0 && len(s.Lines) == 1 {
		indent = "\t"
	}
	if eol == "" {
		eol = "\n"
	}

	// the previous line may be the last line of a file without a trailing newline
	if !strings.HasSuffix(s.Lines[i], "\n") {
		s.Lines[i] += "\n"
		eol = ""
	}

	line := indent + key + " " + value + eol
	s.Lines = append(s.Lines[:i+1], append([]string{line}, s.Lines[i+1:]...)...)
}

// Remove deletes the line at index i
func (s *Stanza) Remove(i int) {
	last := i == len(s.Lines)-1
	removed := s.Lines[i]
	s.Lines = append(s.Lines[:i], s.Lines[i+1:]...)
	// keep "no trailing newline" stable when the last line goes away
	if last && !strings.HasSuffix(removed, "\n") && i > 0 {
		s.Lines[i-1] = strings.TrimSuffix(s.Lines[i-1], "\n")
	}
}

func optionOf(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	fields := strings.Fields(trimmed)
	return fields[0], strings.Join(fields[1:], " "), true
}

func isDeclaration(keyword string) bool {
	return declarationKeywords[keyword] || strings.HasPrefix(keyword, "allow-")
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func splitEOL(line string) (string, string) {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return line[:len(line)-2], "\r\n"
	case strings.HasSuffix(line, "\n"):
		return line[:len(line)-1], "\n"
	}
	return line, ""
}
