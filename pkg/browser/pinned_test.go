package browser

import (
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandle struct {
	events   *[]string
	closeErr error
	page     playwright.Page
}

func (h *recordingHandle) Close() error {
	*h.events = append(*h.events, "browser.close")
	return h.closeErr
}

func (h *recordingHandle) NewPage() (playwright.Page, error) {
	*h.events = append(*h.events, "browser.newpage")
	return h.page, nil
}

// recordingPage overrides the page methods used here; the embedded
// interface is nil and panics on anything else.
type recordingPage struct {
	playwright.Page
	events *[]string
}

func (p *recordingPage) Close(options ...playwright.PageCloseOptions) error {
	*p.events = append(*p.events, "page.close")
	return errors.New("page already closed")
}

func TestPin_ClosesPageThenBrowserOnce(t *testing.T) {
	var events []string
	h := &recordingHandle{events: &events}
	pinned := Pin(h, &recordingPage{events: &events})

	require.NoError(t, pinned.Close())
	require.NoError(t, pinned.Close())

	assert.Equal(t, []string{"page.close", "browser.close"}, events)
}

func TestPin_ReturnsBrowserCloseError(t *testing.T) {
	var events []string
	closeErr := errors.New("browser crashed")
	pinned := Pin(&recordingHandle{events: &events, closeErr: closeErr}, nil)

	assert.ErrorIs(t, pinned.Close(), closeErr)
	assert.Equal(t, []string{"browser.close"}, events)
}

func TestPin_NewPageDelegates(t *testing.T) {
	var events []string
	page := &recordingPage{events: &events}
	pinned := Pin(&recordingHandle{events: &events, page: page}, nil)

	got, err := pinned.NewPage()
	require.NoError(t, err)
	assert.Same(t, page, got)

	bare := Pin(closeOnly{}, nil)
	_, err = bare.NewPage()
	assert.Error(t, err)
}

type closeOnly struct{}

func (closeOnly) Close() error { return nil }
