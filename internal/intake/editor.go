package intake

// Editor exposes the text of the document the user is currently working in.
// ok is false when no document is open.
type Editor interface {
	ActiveText() (text string, ok bool)
}

// WritableEditor is an Editor that can also replace the active document's text.
// Some surfaces only offer read access, so callers must check for this
// capability before attempting a mutation.
type WritableEditor interface {
	Editor
	SetActiveText(text string) error
}

type noEditor struct{}

func (noEditor) ActiveText() (string, bool) { return "", false }
