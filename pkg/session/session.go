// Package session imports editor session logs and replays them through a
// run recorder, so prompt metrics can be captured without manual entry.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/bdougie/vibe-check/pkg/recorder"
)

// Interaction is one prompt/response exchange extracted from a session log.
type Interaction struct {
	Prompt   string
	Response string
}

type sessionFile struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
	History   []any  `json:"history"`
}

// historyEntry covers both session log layouts: newer logs nest the fields
// under "message", older logs carry them at the top level. Content is
// either a plain string or a list of typed parts, so it stays untyped here
// and is flattened by contentText.
type historyEntry struct {
	Message *struct {
		Role    string `mapstructure:"role"`
		Content any    `mapstructure:"content"`
	} `mapstructure:"message"`
	Role    string `mapstructure:"role"`
	Content any    `mapstructure:"content"`
}

func (e historyEntry) role() string {
	if e.Message != nil && e.Message.Role != "" {
		return e.Message.Role
	}

	return e.Role
}

func (e historyEntry) content() (string, bool) {
	if e.Message != nil && e.Message.Role != "" {
		return contentText(e.Message.Content)
	}

	return contentText(e.Content)
}

// contentText flattens a message content value: either a plain string or a
// list of {type, text} parts whose text fields are concatenated. Anything
// else marks the entry as malformed.
func contentText(v any) (string, bool) {
	switch content := v.(type) {
	case string:
		return content, true
	case []any:
		var sb strings.Builder

		for _, raw := range content {
			var part struct {
				Type string `mapstructure:"type"`
				Text string `mapstructure:"text"`
			}

			if err := mapstructure.Decode(raw, &part); err != nil {
				return "", false
			}

			sb.WriteString(part.Text)
		}

		return sb.String(), true
	}

	return "", false
}

// ParseFile extracts prompt/response interactions from a session log. Each
// user message opens an interaction; the next assistant message closes it.
// Malformed history entries are skipped.
func ParseFile(path string) ([]Interaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing session file: %w", err)
	}

	interactions := make([]Interaction, 0, len(sf.History)/2)
	open := -1

	for _, raw := range sf.History {
		var entry historyEntry
		if err := mapstructure.Decode(raw, &entry); err != nil {
			continue
		}

		text, ok := entry.content()
		if !ok {
			continue
		}

		switch entry.role() {
		case "user":
			interactions = append(interactions, Interaction{Prompt: text})
			open = len(interactions) - 1
		case "assistant":
			if open >= 0 {
				interactions[open].Response = text
				open = -1
			}
		}
	}

	return interactions, nil
}

// Apply replays the interactions through the recorder.
func Apply(rec recorder.Recorder, interactions []Interaction) error {
	for i, interaction := range interactions {
		if err := rec.LogInteraction(interaction.Prompt, interaction.Response); err != nil {
			return fmt.Errorf("logging interaction %d: %w", i, err)
		}
	}

	return nil
}

// LatestSession returns the most recently modified session log in dir.
// The sessions.json index file is not itself a session log.
func LatestSession(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading sessions directory: %w", err)
	}

	var (
		latest     string
		latestTime int64 = -1
	)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		if entry.Name() == "sessions.json" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if mod := info.ModTime().UnixNano(); mod > latestTime {
			latest = entry.Name()
			latestTime = mod
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no session logs found in %s", dir)
	}

	return filepath.Join(dir, latest), nil
}
