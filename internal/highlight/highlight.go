package highlight

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

var ansiCSI = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

type Result struct {
	Text      string
	Count     int
	LineIndex []int
}

// Apply wraps every case-insensitive occurrence of query in input with wrap.
// Escape sequences are copied through untouched and a match never spans one.
func Apply(input, query string, wrap func(string) string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Text: input}
	}
	if !containsFold(ansi.Strip(input), query) {
		return Result{Text: input}
	}
	if wrap == nil {
		wrap = func(s string) string { return s }
	}

	lines := strings.Split(input, "\n")
	var res Result
	for i, line := range lines {
		out, n := highlightLine(line, query, wrap)
		lines[i] = out
		if n > 0 {
			res.Count += n
			res.LineIndex = append(res.LineIndex, i)
		}
	}
	res.Text = strings.Join(lines, "\n")
	return res
}

func highlightLine(line, query string, wrap func(string) string) (string, int) {
	var out strings.Builder
	total := 0
	pos := 0
	for _, loc := range ansiCSI.FindAllStringIndex(line, -1) {
		text, n := highlightPlain(line[pos:loc[0]], query, wrap)
		out.WriteString(text)
		out.WriteString(line[loc[0]:loc[1]])
		total += n
		pos = loc[1]
	}
	text, n := highlightPlain(line[pos:], query, wrap)
	out.WriteString(text)
	return out.String(), total + n
}

func highlightPlain(s, query string, wrap func(string) string) (string, int) {
	if len(s) < len(query) {
		return s, 0
	}
	var out strings.Builder
	count := 0
	last := 0
	for i := 0; i+len(query) <= len(s); {
		if strings.EqualFold(s[i:i+len(query)], query) {
			out.WriteString(s[last:i])
			out.WriteString(wrap(s[i : i+len(query)]))
			i += len(query)
			last = i
			count++
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	if count == 0 {
		return s, 0
	}
	out.WriteString(s[last:])
	return out.String(), count
}

func containsFold(s, query string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(query))
}
