package state

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/adchecklist/auditerr"
)

// FrontMatter is the YAML header of a checklist document.
type FrontMatter struct {
	Generator string   `yaml:"generator"`
	Format    int      `yaml:"format"`
	Tags      []string `yaml:"tags,omitempty"`
}

var (
	taskLine  = regexp.MustCompile(`^\s*[-*] \[(.)\] (.*?)\s*\^(t-[0-9a-f]{24})\s*$`)
	blockID   = regexp.MustCompile(`\s\^t-\S*\s*$`)
	wikiAlias = regexp.MustCompile(`^\[\[[^|\]]*\|([^\]]*)\]\]$`)
	wikiPlain = regexp.MustCompile(`^\[\[([^|\]]*)\]\]$`)
)

const commentField = "  comments:: "

// Load reads the checklist at path. A missing file yields the empty state.
func Load(path string) (PriorState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return PriorState{}, auditerr.StateParse("state.Load", err).
			WithContext(map[string]any{"path": path})
	}

	s, err := ParseBytes(data)
	if err != nil {
		var aerr *auditerr.Error
		if errors.As(err, &aerr) {
			return PriorState{}, aerr.WithContext(map[string]any{"path": path})
		}
		return PriorState{}, err
	}
	return s, nil
}

// Parse reads a checklist document from r.
func Parse(r io.Reader) (PriorState, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return PriorState{}, auditerr.StateParse("state.Parse", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses a checklist document. A blank document yields the empty
// state. Anything else must carry this generator's front matter.
func ParseBytes(data []byte) (PriorState, error) {
	if !utf8.Valid(data) {
		return PriorState{}, auditerr.StateParse("state.Parse", errors.New("document is not valid UTF-8"))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Empty(), nil
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		lineNo++
		return strings.TrimRight(sc.Text(), "\r"), true
	}
	fail := func(err error) (PriorState, error) {
		return PriorState{}, auditerr.StateParse("state.Parse", err).
			WithContext(map[string]any{"line": lineNo})
	}

	first, _ := next()
	if strings.TrimSpace(first) != "---" {
		return fail(errors.New("missing front matter: not a generated checklist"))
	}
	var header []string
	closed := false
	for {
		line, ok := next()
		if !ok {
			break
		}
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		header = append(header, line)
	}
	if !closed {
		return fail(errors.New("unterminated front matter"))
	}

	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(strings.Join(header, "\n")), &fm); err != nil {
		return fail(fmt.Errorf("front matter: %w", err))
	}
	if fm.Generator != Generator {
		return fail(fmt.Errorf("front matter generator %q: not a generated checklist", fm.Generator))
	}
	if fm.Format != FormatVersion {
		return fail(fmt.Errorf("unsupported checklist format %d", fm.Format))
	}

	s := PriorState{entries: make(map[string]Entry)}
	category := ""
	stale := false
	for {
		line, ok := next()
		if !ok {
			break
		}

		if heading, ok := strings.CutPrefix(line, "## "); ok {
			category = strings.TrimSpace(heading)
			stale = category == StaleHeading
			continue
		}

		m := taskLine.FindStringSubmatch(line)
		if m == nil {
			if blockID.MatchString(line) {
				return fail(fmt.Errorf("malformed task line %q", line))
			}
			continue
		}

		e := parseBody(m[2])
		e.ID = m[3]
		e.Mark = []rune(m[1])[0]
		if e.Category == "" || !stale {
			e.Category = category
		}
		e.Stale = e.Stale || stale

		if _, dup := s.entries[e.ID]; dup {
			return fail(fmt.Errorf("duplicate task id %s", e.ID))
		}
		s.entries[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	if err := sc.Err(); err != nil {
		return fail(err)
	}
	return s, nil
}

// parseBody splits "<title>  key:: value  ...  comments:: <comment>" into an
// entry. Comments always come last and may contain anything; the other
// fields never contain double spaces.
func parseBody(body string) Entry {
	e := Entry{Comment: "-"}

	body += " "
	head := body
	if i := strings.Index(body, commentField); i >= 0 {
		head = body[:i]
		if c := strings.TrimSpace(body[i+len(commentField):]); c != "" {
			e.Comment = c
		}
	} else if c, ok := strings.CutPrefix(body, "comments:: "); ok {
		head = ""
		if c = strings.TrimSpace(c); c != "" {
			e.Comment = c
		}
	}

	var title []string
	for _, part := range strings.Split(head, "  ") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":: ")
		if !ok || strings.ContainsAny(key, " []") {
			title = append(title, part)
			continue
		}
		switch key {
		case "query":
			e.SourceQuery = linkText(value)
		case "severity":
			e.Severity = value
		case "entities":
			e.Entities = entityList(value)
		case "category":
			e.Category = value
		case "stale":
			e.Stale = value == "true"
		}
	}
	e.Title = strings.Join(title, " ")
	return e
}

// entityList splits a rendered entity list back into display names.
func entityList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ", ") {
		if name := linkText(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// linkText returns the display text of a wiki link, or s itself.
func linkText(s string) string {
	s = strings.TrimSpace(s)
	if m := wikiAlias.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := wikiPlain.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
