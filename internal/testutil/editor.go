package testutil

import (
	"sync"

	"attach-go/internal/intake"
)

// MemoryEditor holds the active document in memory and accepts rewrites.
type MemoryEditor struct {
	mu     sync.Mutex
	text   string
	open   bool
	writes int

	// SetErr, when set, is returned from SetActiveText.
	SetErr error
}

var _ intake.WritableEditor = (*MemoryEditor)(nil)

// NewMemoryEditor creates an editor with text as the open document.
func NewMemoryEditor(text string) *MemoryEditor {
	return &MemoryEditor{text: text, open: true}
}

// NewClosedEditor creates an editor with no open document.
func NewClosedEditor() *MemoryEditor {
	return &MemoryEditor{}
}

func (e *MemoryEditor) ActiveText() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, e.open
}

func (e *MemoryEditor) SetActiveText(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SetErr != nil {
		return e.SetErr
	}
	e.text = text
	e.open = true
	e.writes++
	return nil
}

// Text returns the current document text.
func (e *MemoryEditor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// Writes returns how many times the document was replaced.
func (e *MemoryEditor) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}

// ReadOnlyEditor exposes a document without the ability to change it.
type ReadOnlyEditor struct {
	Text string
}

var _ intake.Editor = ReadOnlyEditor{}

func (e ReadOnlyEditor) ActiveText() (string, bool) {
	return e.Text, true
}
