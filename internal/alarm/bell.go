package alarm

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/infinitech/infinitask/internal/task"
)

// Bell writes a terminal bell and a highlighted reminder line.
type Bell struct {
	mu    sync.Mutex
	w     io.Writer
	color *color.Color
}

func NewBell(w io.Writer, colored bool) *Bell {
	c := color.New(color.FgHiYellow, color.Bold)
	if colored {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return &Bell{w: w, color: c}
}

func (b *Bell) Ring(_ context.Context, t task.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := io.WriteString(b.w, "\a"); err != nil {
		return fmt.Errorf("bell: %w", err)
	}
	title := t.Title
	if title == "" {
		title = "task " + t.ID
	}
	if _, err := b.color.Fprintf(b.w, "due in 1 minute: %s (%s)\n", title, t.Deadline); err != nil {
		return fmt.Errorf("bell: %w", err)
	}
	return nil
}
