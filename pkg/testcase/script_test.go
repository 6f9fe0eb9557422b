package testcase

import (
	"context"
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/lightkeeper/pkg/browser"
)

const loginScript = `
name: shop
timeout: 5000
urls:
  - https://shop.example.com/
  - https://shop.example.com/cart
  - https://shop.example.com/admin/users
exclude:
  - "https://shop.example.com/admin/*"
connect:
  - navigate: https://shop.example.com/login
    wait_until: networkidle
  - fill:
      selector: "#user"
      value: alice
  - fill:
      selector: "#password"
      value: $SHOP_PASSWORD
  - click: "button[type=submit]"
  - wait_for: ".account"
    state: visible
`

// fakePage implements the page methods scripts use. The embedded
// interface is nil, anything else panics.
type fakePage struct {
	playwright.Page

	calls   []string
	timeout float64
	failOn  string
	closed  bool
}

func (p *fakePage) record(call string) error {
	p.calls = append(p.calls, call)
	if p.failOn == call {
		return errors.New("element not found")
	}
	return nil
}

func (p *fakePage) SetDefaultTimeout(timeout float64) {
	p.timeout = timeout
}

func (p *fakePage) Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error) {
	call := "goto " + url
	if len(options) > 0 && options[0].WaitUntil != nil {
		call += " " + string(*options[0].WaitUntil)
	}
	return nil, p.record(call)
}

func (p *fakePage) Click(selector string, options ...playwright.PageClickOptions) error {
	return p.record("click " + selector)
}

func (p *fakePage) Fill(selector, value string, options ...playwright.PageFillOptions) error {
	return p.record("fill " + selector + "=" + value)
}

func (p *fakePage) WaitForSelector(selector string, options ...playwright.PageWaitForSelectorOptions) (playwright.ElementHandle, error) {
	call := "wait " + selector
	if len(options) > 0 && options[0].State != nil {
		call += " " + string(*options[0].State)
	}
	return nil, p.record(call)
}

func (p *fakePage) Close(options ...playwright.PageCloseOptions) error {
	p.closed = true
	return nil
}

type pageHandle struct {
	page   *fakePage
	closed bool
}

func (h *pageHandle) NewPage() (playwright.Page, error) { return h.page, nil }

func (h *pageHandle) Close() error {
	h.closed = true
	return nil
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(loginScript))
	require.NoError(t, err)

	assert.Equal(t, "shop", s.Name)
	assert.Equal(t, "shop", s.String())
	assert.Len(t, s.Steps, 5)
	assert.Equal(t, 5000.0, s.Timeout)

	urls, err := s.URLs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.com/", "https://shop.example.com/cart"}, urls)
}

func TestParseScript_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "no urls", script: "name: empty\n"},
		{name: "two actions", script: "urls: [https://a.example]\nconnect:\n  - navigate: https://a.example\n    click: '#b'\n"},
		{name: "no action", script: "urls: [https://a.example]\nconnect:\n  - state: visible\n"},
		{name: "fill without selector", script: "urls: [https://a.example]\nconnect:\n  - fill: {value: x}\n"},
		{name: "bad exclude", script: "urls: [https://a.example]\nexclude: ['[']\n"},
		{name: "negative timeout", script: "urls: [https://a.example]\ntimeout: -1\n"},
		{name: "not yaml", script: "urls: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tt.script))
			assert.Error(t, err)
		})
	}
}

func TestScript_Connect(t *testing.T) {
	t.Setenv("SHOP_PASSWORD", "s3cret")

	s, err := ParseScript([]byte(loginScript))
	require.NoError(t, err)

	page := &fakePage{}
	h := &pageHandle{page: page}

	got, err := s.Connect(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, 5000.0, page.timeout)
	assert.Equal(t, []string{
		"goto https://shop.example.com/login networkidle",
		"fill #user=alice",
		"fill #password=s3cret",
		"click button[type=submit]",
		"wait .account visible",
	}, page.calls)

	pinned, ok := got.(*browser.PinnedHandle)
	require.True(t, ok)
	assert.Same(t, page, pinned.Page)

	require.NoError(t, got.Close())
	assert.True(t, page.closed)
	assert.True(t, h.closed)
}

func TestScript_ConnectStepFailure(t *testing.T) {
	s, err := ParseScript([]byte(loginScript))
	require.NoError(t, err)

	page := &fakePage{failOn: "click button[type=submit]"}
	h := &pageHandle{page: page}

	_, err = s.Connect(context.Background(), h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect step 4")
	assert.True(t, page.closed)
	assert.False(t, h.closed, "the run owns the browser, not the module")
}

func TestScript_ConnectDefaultTimeout(t *testing.T) {
	s, err := ParseScript([]byte("urls: [https://a.example]\n"))
	require.NoError(t, err)

	page := &fakePage{}
	_, err = s.Connect(context.Background(), &pageHandle{page: page})
	require.NoError(t, err)
	assert.Equal(t, browser.DefaultTimeout, page.timeout)
	assert.Empty(t, page.calls)
}

func TestScript_ConnectRequiresPages(t *testing.T) {
	s, err := ParseScript([]byte("urls: [https://a.example]\n"))
	require.NoError(t, err)

	_, err = s.Connect(context.Background(), nopHandle{})
	assert.Error(t, err)
}
