package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/glean/types"
)

// textPreview is the most extracted text shown in the detail panel.
const textPreview = 600

type keyMap struct {
	Open key.Binding
	Back key.Binding
	Quit key.Binding
}

var keys = keyMap{
	Open: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
	Back: key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// RecordsModel lists processing records and shows one in detail.
type RecordsModel struct {
	records  []*types.ProcessingRecord
	table    table.Model
	detail   bool
	quitting bool
}

// NewRecordsModel creates the browser over records, newest first as given.
func NewRecordsModel(records []*types.ProcessingRecord) RecordsModel {
	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, table.Row{
			r.ProcessedAt.Local().Format("2006-01-02 15:04"),
			r.JobKey,
			string(r.Backend),
			savings(r),
			fmt.Sprintf("%d", len(r.Text)),
		})
	}
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Processed", Width: 16},
			{Title: "Job", Width: 48},
			{Title: "Backend", Width: 9},
			{Title: "Saved", Width: 7},
			{Title: "Text", Width: 6},
		}),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+1, 20)),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.Bold(true).Foreground(accent)
	st.Selected = st.Selected.Foreground(accent).Bold(true)
	t.SetStyles(st)
	return RecordsModel{records: records, table: t}
}

// Init implements tea.Model.
func (m RecordsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m RecordsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-6, 3))
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Open) && !m.detail:
			m.detail = m.Selected() != nil
			return m, nil
		case key.Matches(msg, keys.Back) && m.detail:
			m.detail = false
			return m, nil
		}
	}
	if m.detail {
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// Selected returns the record under the cursor, nil when there are none.
func (m RecordsModel) Selected() *types.ProcessingRecord {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.records) {
		return nil
	}
	return m.records[i]
}

// View implements tea.Model.
func (m RecordsModel) View() string {
	if m.quitting {
		return ""
	}
	if len(m.records) == 0 {
		return titleStyle.Render("No processing records") + "\n" + helpStyle.Render("q quit")
	}
	if m.detail {
		return Detail(m.Selected()) + "\n" + helpStyle.Render("esc back • q quit")
	}
	title := titleStyle.Render(fmt.Sprintf("Processing records (%d)", len(m.records)))
	return title + "\n\n" + m.table.View() + "\n" + helpStyle.Render("↑/↓ move • enter details • q quit")
}

// Detail renders one record as a labeled panel.
func Detail(r *types.ProcessingRecord) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(r.JobKey))
	b.WriteString("\n\n")

	field := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(label), valueStyle.Render(value))
	}
	field("Domain", r.Domain)
	field("Source", r.SourceURL)
	field("Stored", r.StoredBucket+"/"+r.StoredKey)
	field("Processed", r.ProcessedAt.Local().Format("2006-01-02 15:04:05"))
	field("Size", fmt.Sprintf("%d → %d bytes (%s)", r.BeforeSizeBytes, r.AfterSizeBytes, savings(r)))
	field("Compress", fmt.Sprintf("%d ms", r.CompressDurationMs))

	status := okStyle.Render("ok")
	if !r.ExtractionSucceeded {
		status = failStyle.Render("failed")
	}
	fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("Extraction"), valueStyle.Render(fmt.Sprintf("%s, %d ms,", r.Backend, r.OCRDurationMs)), status)

	if r.Text != "" {
		text := r.Text
		if runes := []rune(text); len(runes) > textPreview {
			text = string(runes[:textPreview]) + "…"
		}
		b.WriteString("\n")
		b.WriteString(textStyle.Render(text))
		b.WriteString("\n")
	}
	return panelStyle.Render(b.String())
}

// savings is the size reduction as a percentage of the original.
func savings(r *types.ProcessingRecord) string {
	if r.BeforeSizeBytes <= 0 {
		return "-"
	}
	saved := float64(r.BeforeSizeBytes-r.AfterSizeBytes) / float64(r.BeforeSizeBytes) * 100
	return fmt.Sprintf("%.0f%%", saved)
}

// RunRecords runs the browser on the alternate screen until the user quits.
func RunRecords(records []*types.ProcessingRecord) error {
	_, err := tea.NewProgram(NewRecordsModel(records), tea.WithAltScreen()).Run()
	return err
}
