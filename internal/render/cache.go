package render

import (
	"sync"

	"github.com/charmbracelet/glamour"
)

// rendererKey is everything that changes how an answer is drawn
type rendererKey struct {
	style string
	width int
}

func keyFor(opts Options) rendererKey {
	key := rendererKey{style: opts.Style, width: opts.Width}
	if key.style == "" {
		key.style = StyleDark
	}
	switch {
	case key.width <= 0:
		key.width = DefaultWidth
	case key.width < MinWidth:
		key.width = MinWidth
	}
	return key
}

// answerRenderers holds one sync.Pool of glamour renderers per key.
// A TermRenderer must not serve two Render calls at once, so renderers are
// checked out for the duration of one message.
type answerRenderers struct {
	pools sync.Map // rendererKey -> *sync.Pool
}

var answers answerRenderers

func (r *answerRenderers) pool(key rendererKey) *sync.Pool {
	if p, ok := r.pools.Load(key); ok {
		return p.(*sync.Pool)
	}
	p, _ := r.pools.LoadOrStore(key, &sync.Pool{})
	return p.(*sync.Pool)
}

// render draws markdown with a renderer checked out of the pool for key
func (r *answerRenderers) render(key rendererKey, markdown string) (string, error) {
	pool := r.pool(key)
	tr, ok := pool.Get().(*glamour.TermRenderer)
	if !ok {
		var err error
		if tr, err = newAnswerRenderer(key); err != nil {
			return "", err
		}
	}
	defer pool.Put(tr)

	return tr.Render(markdown)
}

// newAnswerRenderer builds a renderer for key. The style is resolved by
// glamour: a standard style name, "auto", or a JSON file.
func newAnswerRenderer(key rendererKey) (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithStylePath(key.style),
		glamour.WithWordWrap(key.width),
		glamour.WithTableWrap(true),
		glamour.WithEmoji(),
		glamour.WithPreservedNewLines(),
	)
}
