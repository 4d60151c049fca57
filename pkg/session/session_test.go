package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/vibe-check/pkg/recorder"
)

type fakeRecorder struct {
	logged []Interaction
	logErr error
}

var _ recorder.Recorder = (*fakeRecorder)(nil)

func (f *fakeRecorder) Start(_ context.Context) (*recorder.RunRecord, error) {
	return &recorder.RunRecord{}, nil
}

func (f *fakeRecorder) LogInteraction(prompt, response string) error {
	if f.logErr != nil {
		return f.logErr
	}

	f.logged = append(f.logged, Interaction{Prompt: prompt, Response: response})

	return nil
}

func (f *fakeRecorder) LogIntervention(string) error { return nil }

func (f *fakeRecorder) Complete(_ context.Context, _ bool) (*recorder.RunRecord, error) {
	return &recorder.RunRecord{}, nil
}

func (f *fakeRecorder) ResultPath() string { return "" }

func writeSession(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestParseFile_NestedMessages(t *testing.T) {
	path := writeSession(t, t.TempDir(), "session.json", `{
		"sessionId": "abc",
		"title": "Fix the typo",
		"history": [
			{"message": {"role": "user", "content": "Fix the typo in README"}},
			{"message": {"role": "assistant", "content": "Done, changed recieve to receive."}},
			{"message": {"role": "user", "content": "Also update the docs"}},
			{"message": {"role": "assistant", "content": "Updated."}}
		]
	}`)

	interactions, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, interactions, 2)

	assert.Equal(t, "Fix the typo in README", interactions[0].Prompt)
	assert.Equal(t, "Done, changed recieve to receive.", interactions[0].Response)
	assert.Equal(t, "Also update the docs", interactions[1].Prompt)
	assert.Equal(t, "Updated.", interactions[1].Response)
}

func TestParseFile_FlatMessages(t *testing.T) {
	path := writeSession(t, t.TempDir(), "session.json", `{
		"history": [
			{"role": "user", "content": "Write a function"},
			{"role": "assistant", "content": "Here's a function"}
		]
	}`)

	interactions, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, interactions, 1)

	assert.Equal(t, "Write a function", interactions[0].Prompt)
	assert.Equal(t, "Here's a function", interactions[0].Response)
}

func TestParseFile_ContentParts(t *testing.T) {
	path := writeSession(t, t.TempDir(), "session.json", `{
		"history": [
			{"message": {"role": "user", "content": [
				{"type": "text", "text": "Fix the "},
				{"type": "text", "text": "typo"}
			]}},
			{"message": {"role": "assistant", "content": "Done."}}
		]
	}`)

	interactions, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, interactions, 1)

	assert.Equal(t, "Fix the typo", interactions[0].Prompt)
	assert.Equal(t, "Done.", interactions[0].Response)
}

func TestParseFile_SkipsMalformedEntries(t *testing.T) {
	path := writeSession(t, t.TempDir(), "session.json", `{
		"history": [
			{"role": "user", "content": "First"},
			{"role": "assistant", "content": 42},
			{"role": "assistant", "content": "Recovered"},
			"not an object",
			{"role": "system", "content": "ignored"},
			{"role": "user", "content": "Second"}
		]
	}`)

	interactions, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, interactions, 2)

	assert.Equal(t, "First", interactions[0].Prompt)
	assert.Equal(t, "Recovered", interactions[0].Response)
	assert.Equal(t, "Second", interactions[1].Prompt)
	assert.Empty(t, interactions[1].Response)
}

func TestParseFile_UnpairedUserMessages(t *testing.T) {
	path := writeSession(t, t.TempDir(), "session.json", `{
		"history": [
			{"role": "user", "content": "One"},
			{"role": "user", "content": "Two"},
			{"role": "assistant", "content": "Answer to two"}
		]
	}`)

	interactions, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, interactions, 2)

	assert.Empty(t, interactions[0].Response)
	assert.Equal(t, "Answer to two", interactions[1].Response)
}

func TestParseFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ParseFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading session file")

	bad := writeSession(t, dir, "bad.json", "{not json")

	_, err = ParseFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing session file")
}

func TestLatestSession(t *testing.T) {
	dir := t.TempDir()

	older := writeSession(t, dir, "aaa.json", "{}")
	newer := writeSession(t, dir, "bbb.json", "{}")
	writeSession(t, dir, "sessions.json", "[]")
	writeSession(t, dir, "notes.txt", "ignored")

	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, base, base))
	require.NoError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

	latest, err := LatestSession(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, latest)
}

func TestLatestSession_Empty(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "sessions.json", "[]")

	_, err := LatestSession(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session logs found")
}

func TestLatestSession_MissingDir(t *testing.T) {
	_, err := LatestSession(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	rec := &fakeRecorder{}
	interactions := []Interaction{
		{Prompt: "Fix it", Response: "Fixed"},
		{Prompt: "Test it", Response: "Tested"},
	}

	require.NoError(t, Apply(rec, interactions))
	assert.Equal(t, interactions, rec.logged)
}

func TestApply_PropagatesError(t *testing.T) {
	rec := &fakeRecorder{logErr: errors.New("not in progress")}

	err := Apply(rec, []Interaction{{Prompt: "Fix it"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging interaction 0")
}
