package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Lllllllleong/pdftools/internal/workflow"
)

// stateBar renders Processing states as a progress bar.
type stateBar struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newStateBar(w io.Writer, description string) *stateBar {
	bar := progressbar.NewOptions(
		1,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &stateBar{bar: bar}
}

// Update is the orchestrator's OnChange hook.
func (s *stateBar) Update(state workflow.State) {
	p, ok := state.(workflow.Processing)
	if !ok || p.Total <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar.GetMax() != p.Total {
		s.bar.ChangeMax(p.Total)
	}
	_ = s.bar.Set(p.Done)
}

func (s *stateBar) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.bar.Finish()
}
