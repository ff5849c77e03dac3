package app

import (
	"fmt"
	"io"
	"sync"

	"attach-go/internal/intake"
)

// ConsoleNotifier prints user notices, one per line.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

var _ intake.Notifier = (*ConsoleNotifier)(nil)

func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

func (n *ConsoleNotifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "attach: %s\n", msg)
}
