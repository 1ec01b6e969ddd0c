package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tale555/dify-chat-webapp/internal/render"
)

// spinner draws an animated waiting line on a terminal
type spinner struct {
	out     io.Writer
	message string
	palette []lipgloss.Color
	theme   render.TUITheme

	stop    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	frame   int
	stopped bool
}

func newSpinner(out io.Writer, message string) *spinner {
	theme := render.GetTUITheme()
	return &spinner{
		out:     out,
		message: message,
		theme:   theme,
		palette: []lipgloss.Color{theme.Assistant, theme.User, theme.Highlight, theme.Warning},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *spinner) start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		// Hide cursor
		fmt.Fprint(s.out, "\033[?25l")

		for {
			select {
			case <-s.stop:
				// Clear line and show cursor
				fmt.Fprint(s.out, "\r\033[K\033[?25h")
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprint(s.out, "\r\033[K"+s.frameString())
				s.frame++
				s.mu.Unlock()
			}
		}
	}()
}

// frameString renders the current animation frame
func (s *spinner) frameString() string {
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

	spin := lipgloss.NewStyle().
		Foreground(s.palette[s.frame%len(s.palette)]).
		Bold(true).
		Render(chars[s.frame%len(chars)])

	var dots strings.Builder
	lit := (s.frame / 3) % 4
	for i := 0; i < 3; i++ {
		if i < lit {
			dots.WriteString(lipgloss.NewStyle().Foreground(s.palette[(s.frame+i)%len(s.palette)]).Render("●"))
		} else {
			dots.WriteString(lipgloss.NewStyle().Foreground(s.theme.TextMute).Render("○"))
		}
	}

	msg := lipgloss.NewStyle().Foreground(s.theme.Text).Render(s.message)
	return fmt.Sprintf("%s %s %s", spin, msg, dots.String())
}

// stopOnce closes the stop channel only once
func (s *spinner) stopOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		close(s.stop)
		s.stopped = true
	}
}

// finish stops the animation and waits for the line to be cleared
func (s *spinner) finish() {
	s.stopOnce()
	<-s.done
}
