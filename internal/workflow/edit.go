package workflow

import (
	"fmt"

	"github.com/Lllllllleong/pdftools/internal/transform"
)

// editItems applies fn to the loaded items while in Preview and not busy.
func (o *Orchestrator) editItems(fn func(items []Item) ([]Item, error)) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.state.Phase() != PhasePreview {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	items, err := fn(o.items)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.items = items
	var s State = o.previewSnapshot()
	if len(items) == 0 {
		s = Upload{}
	}
	o.state = s
	o.mu.Unlock()
	o.notify(s)
	return nil
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("index %d out of range [0, %d)", i, n)
	}
	return nil
}

// Move reorders an item; the conversion order follows.
func (o *Orchestrator) Move(from, to int) error {
	return o.editItems(func(items []Item) ([]Item, error) {
		if err := checkIndex(from, len(items)); err != nil {
			return nil, err
		}
		if err := checkIndex(to, len(items)); err != nil {
			return nil, err
		}
		it := items[from]
		items = append(items[:from], items[from+1:]...)
		items = append(items[:to], append([]Item{it}, items[to:]...)...)
		return items, nil
	})
}

// RotateLeft turns item i a quarter counter-clockwise.
func (o *Orchestrator) RotateLeft(i int) error {
	return o.rotate(i, transform.RotateLeft)
}

// RotateRight turns item i a quarter clockwise.
func (o *Orchestrator) RotateRight(i int) error {
	return o.rotate(i, transform.RotateRight)
}

func (o *Orchestrator) rotate(i int, turn func(int) int) error {
	return o.editItems(func(items []Item) ([]Item, error) {
		if err := checkIndex(i, len(items)); err != nil {
			return nil, err
		}
		items[i].Rotation = turn(items[i].Rotation)
		return items, nil
	})
}

// Remove drops item i and releases its previews. Removing the last item returns to Upload.
func (o *Orchestrator) Remove(i int) error {
	return o.editItems(func(items []Item) ([]Item, error) {
		if err := checkIndex(i, len(items)); err != nil {
			return nil, err
		}
		releaseAll(items[i].Previews)
		return append(items[:i], items[i+1:]...), nil
	})
}

// editSelection applies fn to the page choices while in Selection and not busy.
func (o *Orchestrator) editSelection(fn func(pages []PageChoice) error) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.state.Phase() != PhaseSelection || o.selection == nil {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	if err := fn(o.selection.Pages); err != nil {
		o.mu.Unlock()
		return err
	}
	s := o.selectionSnapshot()
	o.state = s
	o.mu.Unlock()
	o.notify(s)
	return nil
}

// TogglePage flips the selection of a 1-based page.
func (o *Orchestrator) TogglePage(page int) error {
	return o.editSelection(func(pages []PageChoice) error {
		if err := checkIndex(page-1, len(pages)); err != nil {
			return fmt.Errorf("%w: %d", transform.ErrPageOutOfRange, page)
		}
		pages[page-1].Selected = !pages[page-1].Selected
		return nil
	})
}

// SelectAll selects every page.
func (o *Orchestrator) SelectAll() error {
	return o.setAll(true)
}

// SelectNone clears the selection, which disables conversion.
func (o *Orchestrator) SelectNone() error {
	return o.setAll(false)
}

func (o *Orchestrator) setAll(selected bool) error {
	return o.editSelection(func(pages []PageChoice) error {
		for i := range pages {
			pages[i].Selected = selected
		}
		return nil
	})
}

// SelectPages replaces the selection with the given 1-based pages.
func (o *Orchestrator) SelectPages(selected []int) error {
	return o.editSelection(func(pages []PageChoice) error {
		want := make(map[int]bool, len(selected))
		for _, p := range selected {
			if p < 1 || p > len(pages) {
				return fmt.Errorf("%w: %d", transform.ErrPageOutOfRange, p)
			}
			want[p] = true
		}
		for i := range pages {
			pages[i].Selected = want[pages[i].Page]
		}
		return nil
	})
}
