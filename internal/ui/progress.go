package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Spinner represents an animated spinner for long operations
type Spinner struct {
	frames    []string
	current   int
	message   string
	startTime time.Time
	stop      chan struct{}
	done      chan struct{}
	stopped   bool
	mu        sync.Mutex
}

// NewSpinner creates a new spinner
func NewSpinner(message string) *Spinner {
	return &Spinner{
		frames:  []string{"|", "/", "-", "\\"},
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the spinner animation. Nothing is animated when stdout is
// not a terminal.
func (s *Spinner) Start() {
	s.startTime = time.Now()
	if !supportsColor {
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(Output, "\r%s %s %s",
					ColorProgress(s.frames[s.current]),
					s.message,
					strings.Repeat(" ", 20),
				)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner and prints the final status with the elapsed time.
func (s *Spinner) Stop(success bool, message string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	if supportsColor {
		fmt.Fprint(Output, "\r\033[K")
	}

	elapsed := ColorDim("(" + formatDuration(time.Since(s.startTime)) + ")")
	if success {
		fmt.Fprintf(Output, "%s %s %s\n", ColorSuccess("OK"), message, elapsed)
	} else {
		fmt.Fprintf(Output, "%s %s %s\n", ColorError("FAILED"), message, elapsed)
	}
}

// UpdateMessage updates the spinner message
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
