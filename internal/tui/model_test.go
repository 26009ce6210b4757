package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"pdf-chat/internal/models"
	"pdf-chat/internal/rag"
)

type fakeSession struct {
	history   []models.Turn
	err       error
	ingestErr error
	asked     []string
	ingested  [][]models.Document
}

func (f *fakeSession) Ingest(ctx context.Context, docs []models.Document) error {
	f.ingested = append(f.ingested, docs)
	return f.ingestErr
}

func (f *fakeSession) Ask(ctx context.Context, question string) (*rag.Answer, error) {
	f.asked = append(f.asked, question)
	f.history = append(f.history, models.Turn{Role: models.RoleUser, Content: question})
	if f.err != nil {
		return nil, f.err
	}
	f.history = append(f.history, models.Turn{Role: models.RoleAssistant, Content: "answer to " + question})
	return &rag.Answer{Text: "answer to " + question, Sources: make([]models.SearchResult, 2)}, nil
}

func (f *fakeSession) History() []models.Turn {
	return append([]models.Turn(nil), f.history...)
}

func typeQuestion(t *testing.T, m Model, q string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(q)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestUpdate_AskRoundTrip(t *testing.T) {
	session := &fakeSession{}
	m := New(context.Background(), session, "2 documents")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m, cmd := typeQuestion(t, m, "  what is chromem?  ")
	if cmd == nil {
		t.Fatal("enter did not produce an ask command")
	}
	if !m.busy || m.input.Value() != "" {
		t.Errorf("busy = %v, input = %q after enter", m.busy, m.input.Value())
	}

	// a second enter while busy is ignored
	if _, again := typeQuestion(t, m, "another"); again != nil {
		t.Error("question sent while busy")
	}

	next, _ = m.Update(cmd())
	m = next.(Model)
	if m.busy {
		t.Error("still busy after answer")
	}
	if len(session.asked) != 1 || session.asked[0] != "what is chromem?" {
		t.Errorf("asked = %q", session.asked)
	}
	if len(m.turns) != 2 || m.sources != 2 {
		t.Errorf("turns = %v, sources = %d", m.turns, m.sources)
	}
	if view := m.View(); !strings.Contains(view, "answer to what is chromem?") {
		t.Errorf("view misses the answer:\n%s", view)
	}
}

func TestUpdate_AskError(t *testing.T) {
	session := &fakeSession{err: models.ErrNotReady}
	m := New(context.Background(), session, "")
	m, cmd := typeQuestion(t, m, "hello")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if !strings.Contains(m.status, models.ErrNotReady.Error()) {
		t.Errorf("status = %q", m.status)
	}
	if len(m.turns) != 1 || m.turns[0].Role != models.RoleUser {
		t.Errorf("turns = %v, want the unanswered question", m.turns)
	}
}

func TestUpdate_EmptyInputAndQuit(t *testing.T) {
	m := New(context.Background(), &fakeSession{}, "")
	if _, cmd := typeQuestion(t, m, "   "); cmd != nil {
		t.Error("blank question produced a command")
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("esc command is not tea.Quit")
	}
}

func TestNew_ShowsExistingHistory(t *testing.T) {
	session := &fakeSession{history: []models.Turn{{Role: models.RoleUser, Content: "earlier"}}}
	m := New(context.Background(), session, "")
	if len(m.turns) != 1 {
		t.Fatalf("turns = %v", m.turns)
	}
}

func TestUpdate_ProcessFiles(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"b.pdf", "a.pdf"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	session := &fakeSession{history: []models.Turn{{Role: models.RoleUser, Content: "earlier"}}}
	m := New(context.Background(), session, "1 documents indexed")

	m, cmd := typeQuestion(t, m, "/process "+strings.Join(paths, " "))
	if cmd == nil {
		t.Fatal("/process did not produce a command")
	}
	if !m.busy || len(m.turns) != 1 {
		t.Errorf("busy = %v, turns = %v after /process", m.busy, m.turns)
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if m.busy {
		t.Error("still busy after processing")
	}
	if len(session.ingested) != 1 || len(session.ingested[0]) != 2 {
		t.Fatalf("ingested = %v", session.ingested)
	}
	if got := session.ingested[0][0].Name; got != "b.pdf" {
		t.Errorf("first document = %q, want b.pdf", got)
	}
	if m.status != "Processed 2 documents." || m.summary != "2 documents indexed" {
		t.Errorf("status = %q, summary = %q", m.status, m.summary)
	}
	if len(session.asked) != 0 {
		t.Errorf("/process was sent as a question: %q", session.asked)
	}
}

func TestUpdate_ProcessErrors(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "a.pdf")
	if err := os.WriteFile(valid, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	testCases := []struct {
		name       string
		input      string
		ingestErr  error
		wantStatus string
		wantCmd    bool
	}{
		{"no files", "/process", nil, "Usage: /process FILE...", false},
		{"missing file", "/process " + filepath.Join(dir, "missing.pdf"), nil, "Error: failed to read", true},
		{"ingest fails", "/process " + valid, errors.New("no text"), "Error: no text", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			session := &fakeSession{ingestErr: tc.ingestErr}
			m, cmd := typeQuestion(t, New(context.Background(), session, "kept"), tc.input)
			if (cmd != nil) != tc.wantCmd {
				t.Fatalf("cmd = %v, want command %v", cmd, tc.wantCmd)
			}
			if cmd != nil {
				next, _ := m.Update(cmd())
				m = next.(Model)
			}
			if !strings.HasPrefix(m.status, tc.wantStatus) {
				t.Errorf("status = %q, want prefix %q", m.status, tc.wantStatus)
			}
			if m.busy || m.summary != "kept" {
				t.Errorf("busy = %v, summary = %q", m.busy, m.summary)
			}
		})
	}
}
