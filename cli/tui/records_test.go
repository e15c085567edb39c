package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/glean/types"
)

func testRecords() []*types.ProcessingRecord {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []*types.ProcessingRecord{
		{
			JobKey: "b/screenshots/example.com/1-a.png", Domain: "example.com",
			BeforeSizeBytes: 1000, AfterSizeBytes: 250, Backend: types.BackendLocal,
			ExtractionSucceeded: true, Text: "INVOICE #42", ProcessedAt: at,
			StoredBucket: "b", StoredKey: "compressed/screenshots/example.com/1-a.png",
		},
		{
			JobKey: "b/screenshots/example.org/2-b.png", Domain: "example.org",
			BeforeSizeBytes: 400, AfterSizeBytes: 400, Backend: types.BackendVision,
			ProcessedAt: at.Add(-time.Hour),
		},
	}
}

func press(t *testing.T, m tea.Model, msg tea.KeyMsg) (RecordsModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	rm, ok := next.(RecordsModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return rm, cmd
}

func TestRecordsModel_Navigation(t *testing.T) {
	m := NewRecordsModel(testRecords())
	if got := m.Selected().JobKey; got != "b/screenshots/example.com/1-a.png" {
		t.Fatalf("initial selection = %q", got)
	}
	if !strings.Contains(m.View(), "Processing records (2)") {
		t.Errorf("list view missing title:\n%s", m.View())
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if got := m.Selected().Domain; got != "example.org" {
		t.Fatalf("after down, selection = %q", got)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	view := m.View()
	if !strings.Contains(view, "b/screenshots/example.org/2-b.png") || !strings.Contains(view, "failed") {
		t.Errorf("detail view:\n%s", view)
	}

	// Movement keys do nothing while the detail panel is open.
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if got := m.Selected().Domain; got != "example.org" {
		t.Errorf("selection moved under detail panel: %q", got)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if !strings.Contains(m.View(), "Processing records (2)") {
		t.Errorf("esc should return to the list:\n%s", m.View())
	}
}

func TestRecordsModel_Quit(t *testing.T) {
	m, cmd := press(t, NewRecordsModel(testRecords()), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("q command = %T, want tea.QuitMsg", cmd())
	}
	if m.View() != "" {
		t.Errorf("view after quit = %q", m.View())
	}
}

func TestRecordsModel_Empty(t *testing.T) {
	m := NewRecordsModel(nil)
	if m.Selected() != nil {
		t.Error("empty list has no selection")
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.View(), "No processing records") {
		t.Errorf("view = %q", m.View())
	}
}

func TestDetail(t *testing.T) {
	r := testRecords()[0]
	r.Text = strings.Repeat("é", textPreview+10)
	out := Detail(r)
	for _, want := range []string{"example.com", "75%", "compressed/screenshots/example.com/1-a.png", "ok", "…"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestSavings(t *testing.T) {
	tests := []struct {
		before, after int64
		want          string
	}{
		{1000, 250, "75%"},
		{400, 400, "0%"},
		{0, 0, "-"},
	}
	for _, tt := range tests {
		r := &types.ProcessingRecord{BeforeSizeBytes: tt.before, AfterSizeBytes: tt.after}
		if got := savings(r); got != tt.want {
			t.Errorf("savings(%d, %d) = %q, want %q", tt.before, tt.after, got, tt.want)
		}
	}
}
