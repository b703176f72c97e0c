// Package history provides command based undo and redo.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultLimit is the number of commands kept for undo.
const DefaultLimit = 50

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Command is a reversible change. Do must be repeatable after Undo so the
// command can be redone.
type Command struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Batch combines cmds into one command. A failing step rolls back the steps
// before it. Undo runs in reverse order.
func Batch(name string, cmds ...Command) Command {
	return Command{
		Name: name,
		Do: func(ctx context.Context) error {
			for i, cmd := range cmds {
				if err := cmd.Do(ctx); err != nil {
					for j := i - 1; j >= 0; j-- {
						err = errors.Join(err, cmds[j].Undo(ctx))
					}

					return fmt.Errorf("%s: %w", cmd.Name, err)
				}
			}

			return nil
		},
		Undo: func(ctx context.Context) error {
			var errs []error

			for i := len(cmds) - 1; i >= 0; i-- {
				if err := cmds[i].Undo(ctx); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", cmds[i].Name, err))
				}
			}

			return errors.Join(errs...)
		},
	}
}

// History keeps the undo and redo stacks.
type History struct {
	mu    sync.Mutex
	limit int
	undo  []Command
	redo  []Command
}

func New(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}

	return &History{limit: limit}
}

// Execute runs cmd and records it. A new command discards what could be redone.
func (h *History) Execute(ctx context.Context, cmd Command) error {
	if err := cmd.Do(ctx); err != nil {
		return err
	}

	h.Record(cmd)

	return nil
}

// Record pushes a command whose change has already been applied.
func (h *History) Record(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = append(h.undo, cmd)
	if over := len(h.undo) - h.limit; over > 0 {
		h.undo = h.undo[over:]
	}

	h.redo = nil
}

// Undo reverts the most recent command. On failure the command stays on the
// undo stack.
func (h *History) Undo(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return "", ErrNothingToUndo
	}

	cmd := h.undo[len(h.undo)-1]
	if err := cmd.Undo(ctx); err != nil {
		return cmd.Name, fmt.Errorf("undo %s: %w", cmd.Name, err)
	}

	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, cmd)

	return cmd.Name, nil
}

// Redo applies the most recently undone command again.
func (h *History) Redo(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return "", ErrNothingToRedo
	}

	cmd := h.redo[len(h.redo)-1]
	if err := cmd.Do(ctx); err != nil {
		return cmd.Name, fmt.Errorf("redo %s: %w", cmd.Name, err)
	}

	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, cmd)

	return cmd.Name, nil
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.redo) > 0
}

// Len returns the sizes of the undo and redo stacks.
func (h *History) Len() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.undo), len(h.redo)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = nil
	h.redo = nil
}
