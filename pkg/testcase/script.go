package testcase

import (
	"context"
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"github.com/playwright-community/playwright-go"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/lightkeeper/pkg/browser"
)

// Script is a declarative module read from YAML. Its connect steps run on a
// new page before the audit, which keeps cookies and storage (a login for
// instance) in the browser Lighthouse attaches to.
type Script struct {
	Name    string   `yaml:"name"`
	Targets []string `yaml:"urls"`
	Exclude []string `yaml:"exclude"`

	// Timeout is the default step timeout in milliseconds
	Timeout float64 `yaml:"timeout"`

	Steps []Step `yaml:"connect"`

	excludes []glob.Glob
}

// Step is one connect action. Exactly one of Navigate, Click, Fill and
// WaitFor must be set.
type Step struct {
	Navigate string `yaml:"navigate"`
	// WaitUntil is one of load, domcontentloaded, networkidle, commit
	WaitUntil string `yaml:"wait_until"`

	Click string `yaml:"click"`

	Fill *FillStep `yaml:"fill"`

	WaitFor string `yaml:"wait_for"`
	// State is one of attached, detached, visible, hidden
	State string `yaml:"state"`
}

// FillStep types a value into an input. The value is expanded against the
// environment so credentials can stay out of the file.
type FillStep struct {
	Selector string `yaml:"selector"`
	Value    string `yaml:"value"`
}

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

// ParseScript parses and validates a script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the steps and compiles the exclude patterns.
func (s *Script) Validate() error {
	if len(s.Targets) == 0 {
		return fmt.Errorf("script has no urls")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("connect step %d: %w", i+1, err)
		}
	}

	s.excludes = s.excludes[:0]
	for _, pattern := range s.Exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		s.excludes = append(s.excludes, g)
	}
	return nil
}

func (st Step) validate() error {
	actions := 0
	if st.Navigate != "" {
		actions++
	}
	if st.Click != "" {
		actions++
	}
	if st.Fill != nil {
		actions++
		if st.Fill.Selector == "" {
			return fmt.Errorf("fill requires a selector")
		}
	}
	if st.WaitFor != "" {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("expected exactly one action, got %d", actions)
	}
	return nil
}

// String returns the script name.
func (s *Script) String() string {
	return s.Name
}

// Connect opens a page, runs the connect steps on it and returns the handle
// pinned to that page.
func (s *Script) Connect(_ context.Context, h browser.Handle) (browser.Handle, error) {
	opener, ok := h.(browser.PageOpener)
	if !ok {
		return nil, fmt.Errorf("browser handle cannot open pages")
	}

	page, err := opener.NewPage()
	if err != nil {
		return nil, err
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = browser.DefaultTimeout
	}
	page.SetDefaultTimeout(timeout)

	for i, step := range s.Steps {
		if err := step.run(page); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("connect step %d: %w", i+1, err)
		}
	}

	return browser.Pin(h, page), nil
}

// URLs returns the script targets minus the excluded ones, in file order.
func (s *Script) URLs(context.Context) ([]string, error) {
	urls := make([]string, 0, len(s.Targets))
	for _, u := range s.Targets {
		if s.excluded(u) {
			continue
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func (s *Script) excluded(u string) bool {
	for _, g := range s.excludes {
		if g.Match(u) {
			return true
		}
	}
	return false
}

func (st Step) run(page playwright.Page) error {
	switch {
	case st.Navigate != "":
		opts := playwright.PageGotoOptions{}
		if st.WaitUntil != "" {
			waitUntil := playwright.WaitUntilState(st.WaitUntil)
			opts.WaitUntil = &waitUntil
		}
		if _, err := page.Goto(st.Navigate, opts); err != nil {
			return fmt.Errorf("navigation failed: %w", err)
		}

	case st.Click != "":
		if err := page.Click(st.Click); err != nil {
			return fmt.Errorf("click failed: %w", err)
		}

	case st.Fill != nil:
		if err := page.Fill(st.Fill.Selector, os.ExpandEnv(st.Fill.Value)); err != nil {
			return fmt.Errorf("fill failed: %w", err)
		}

	case st.WaitFor != "":
		opts := playwright.PageWaitForSelectorOptions{}
		if st.State != "" {
			state := playwright.WaitForSelectorState(st.State)
			opts.State = &state
		}
		if _, err := page.WaitForSelector(st.WaitFor, opts); err != nil {
			return fmt.Errorf("wait failed: %w", err)
		}
	}
	return nil
}
