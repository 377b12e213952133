package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Entry is one parsed transcript line. Only the fields the verifier reads are
// modeled; unknown fields are ignored so format drift does not break loading.
type Entry struct {
	Type      string    // "user", "assistant", "system", ...
	Timestamp time.Time // zero when absent or unparseable
	Text      string    // concatenated text content
	Tools     []ToolUse // tool invocations in this entry
}

// ToolUse is one tool invocation extracted from an assistant entry.
type ToolUse struct {
	Name  string
	Input string // compact JSON of the tool input
}

// Transcript is one fully loaded session.
type Transcript struct {
	SessionID string
	Path      string
	ModTime   time.Time
	Entries   []Entry
	Malformed int // lines skipped during parsing
}

// rawEntry mirrors the transcript wire format loosely enough to survive
// format evolution. Message content is either a plain string or a list of
// typed blocks.
type rawEntry struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type rawBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// LoadTranscript parses the session's JSONL file. Malformed lines are counted
// and skipped; an unreadable file is an error (planning must not continue on
// a transcript it could not read).
func LoadTranscript(s Session) (*Transcript, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open transcript %s: %w", s.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat transcript %s: %w", s.Path, err)
	}

	t := &Transcript{SessionID: s.ID, Path: s.Path, ModTime: info.ModTime()}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, ok := parseLine([]byte(line))
		if !ok {
			t.Malformed++
			continue
		}
		t.Entries = append(t.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript %s: %w", s.Path, err)
	}
	return t, nil
}

func parseLine(line []byte) (Entry, bool) {
	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, false
	}
	if raw.Type == "" {
		return Entry{}, false
	}

	e := Entry{Type: raw.Type}
	if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
		e.Timestamp = ts
	}

	content := raw.Message.Content
	if len(content) == 0 {
		return e, true
	}

	// Plain-string content predates block content; accept both.
	var text string
	if err := json.Unmarshal(content, &text); err == nil {
		e.Text = text
		return e, true
	}

	var blocks []rawBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return e, true
	}
	var texts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				texts = append(texts, b.Text)
			}
		case "tool_use":
			e.Tools = append(e.Tools, ToolUse{Name: b.Name, Input: compactInput(b.Input)})
		}
	}
	e.Text = strings.Join(texts, "\n")
	return e, true
}

func compactInput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Render produces the prompt-facing text view of the transcript. When the
// rendered dialog exceeds maxBytes, the middle is elided so both the opening
// request and the latest activity survive.
func (t *Transcript) Render(maxBytes int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("=== session %s (%d entries) ===\n", t.SessionID, len(t.Entries)))
	for _, e := range t.Entries {
		switch e.Type {
		case "user":
			writeDialog(&b, "user", e.Text)
		case "assistant":
			writeDialog(&b, "assistant", e.Text)
			for _, tu := range e.Tools {
				b.WriteString(fmt.Sprintf("  [tool] %s %s\n", tu.Name, clip(tu.Input, 200)))
			}
		}
	}
	out := b.String()
	if maxBytes > 0 && len(out) > maxBytes {
		head := maxBytes * 2 / 3
		tail := maxBytes - head
		out = out[:head] + "\n[... transcript elided ...]\n" + out[len(out)-tail:]
	}
	return out
}

func writeDialog(b *strings.Builder, role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.WriteString(role)
	b.WriteString(": ")
	b.WriteString(text)
	b.WriteString("\n")
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// LastActivity returns the newest entry timestamp, falling back to the file
// modification time when no entry carries one.
func (t *Transcript) LastActivity() time.Time {
	last := time.Time{}
	for _, e := range t.Entries {
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	if last.IsZero() {
		return t.ModTime
	}
	return last
}
