package timetravel

import "fmt"

// Change is one field that differs between two states.
type Change struct {
	Path   string
	Before any
	After  any
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %v -> %v", c.Path, c.Before, c.After)
}

// Diffable state types describe their own structural differences.
type Diffable[S any] interface {
	Diff(other S) []Change
}

// Field appends a Change for path when before and after differ. It is a
// building block for Diffable implementations.
func Field[T comparable](changes []Change, path string, before, after T) []Change {
	if before == after {
		return changes
	}
	return append(changes, Change{Path: path, Before: before, After: after})
}

// Diff compares the resulting states of entries i and j.
func (d *Debugger[S, A]) Diff(i, j int) ([]Change, error) {
	d.mu.Lock()
	n := len(d.entries)
	if i < 0 || i >= n || j < 0 || j >= n {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: (%d, %d) not in [0, %d)", ErrIndexOutOfRange, i, j, n)
	}
	from, to := d.entries[i].After, d.entries[j].After
	d.mu.Unlock()

	return diff(from, to)
}

// DiffEntry compares the state before and after entry i.
func (d *Debugger[S, A]) DiffEntry(i int) ([]Change, error) {
	d.mu.Lock()
	if i < 0 || i >= len(d.entries) {
		n := len(d.entries)
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, n)
	}
	e := d.entries[i]
	d.mu.Unlock()

	return diff(e.Before, e.After)
}

func diff[S any](from, to S) ([]Change, error) {
	df, ok := any(from).(Diffable[S])
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotDiffable, from)
	}
	return df.Diff(to), nil
}
