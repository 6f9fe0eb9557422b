package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
  "requestedUrl": "https://example.com",
  "categories": {
    "performance": {"score": 0.9},
    "accessibility": {"score": 1},
    "seo": {"score": 0.8}
  }
}`

// fakeLighthouse records invocations and writes reports the way the
// lighthouse CLI would.
type fakeLighthouse struct {
	fs     afero.Fs
	calls  [][]string
	fail   map[string]bool
	report string
}

func (f *fakeLighthouse) command(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))

	var site, outputPath string
	formats := 0
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "https://"):
			site = arg
		case strings.HasPrefix(arg, "--output-path="):
			outputPath = strings.TrimPrefix(arg, "--output-path=")
		case strings.HasPrefix(arg, "--output="):
			formats++
		}
	}
	if f.fail[site] {
		return []byte("Runtime error encountered"), errors.New("exit status 1")
	}

	jsonPath := outputPath
	if formats > 1 {
		jsonPath = outputPath + ".report.json"
		if err := afero.WriteFile(f.fs, outputPath+".report.html", []byte("<html></html>"), 0644); err != nil {
			return nil, err
		}
	}
	report := f.report
	if report == "" {
		report = sampleReport
	}
	return []byte("auditing " + site + "\n"), afero.WriteFile(f.fs, jsonPath, []byte(report), 0644)
}

func newTestRunner(fake *fakeLighthouse, opts ...BatchOption) *BatchRunner {
	opts = append([]BatchOption{WithFs(fake.fs), WithCommand(fake.command)}, opts...)
	return NewBatchRunner(opts...)
}

func TestBatchRunner_Run(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := &fakeLighthouse{fs: fs}
	runner := newTestRunner(fake)

	summary, err := runner.Run(context.Background(), Options{
		Sites:     []string{"https://example.com", "https://example.com/about"},
		Out:       "/reports",
		UseGlobal: true,
		Params:    "--port 9222 --quiet",
	})
	require.NoError(t, err)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{
		"lighthouse", "https://example.com", "--output=json",
		"--output-path=/reports/example_com.report.json",
		"--port", "9222", "--quiet",
	}, fake.calls[0])

	require.Len(t, summary.Sites, 2)
	first := summary.Sites[0]
	assert.Equal(t, "https://example.com", first.URL)
	assert.Equal(t, "example_com", first.Name)
	assert.Equal(t, "example_com.report.json", first.File)
	assert.InDelta(t, 0.9, first.Score, 0.0001)
	assert.Equal(t, map[string]float64{"performance": 0.9, "accessibility": 1, "seo": 0.8}, first.Detail)
	assert.Empty(t, summary.Failed())

	data, err := afero.ReadFile(fs, filepath.Join("/reports", SummaryFile))
	require.NoError(t, err)
	var written []SiteResult
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, summary.Sites, written)
}

func TestBatchRunner_HTMLAndNpx(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := &fakeLighthouse{fs: fs}
	runner := newTestRunner(fake)

	summary, err := runner.Run(context.Background(), Options{
		Sites: []string{"https://example.com"},
		Out:   "/reports",
		HTML:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"npx", "--yes", "lighthouse", "https://example.com",
		"--output=json", "--output=html", "--output-path=/reports/example_com",
	}, fake.calls[0])
	assert.Equal(t, "example_com.report.html", summary.Sites[0].HTML)

	exists, err := afero.Exists(fs, "/reports/example_com.report.html")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBatchRunner_SiteFailureContinues(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := &fakeLighthouse{fs: fs, fail: map[string]bool{"https://broken.example": true}}
	runner := newTestRunner(fake)

	summary, err := runner.Run(context.Background(), Options{
		Sites:     []string{"https://broken.example", "https://example.com"},
		Out:       "/reports",
		UseGlobal: true,
	})
	require.Error(t, err)

	var siteErr *SiteError
	require.ErrorAs(t, err, &siteErr)
	assert.Equal(t, "https://broken.example", siteErr.URL)
	assert.Contains(t, siteErr.Output, "Runtime error")

	assert.Len(t, fake.calls, 2)
	require.Len(t, summary.Failed(), 1)
	assert.Equal(t, "https://broken.example", summary.Failed()[0].URL)

	exists, err := afero.Exists(fs, "/reports/"+SummaryFile)
	require.NoError(t, err)
	assert.True(t, exists, "summary is written even when a site fails")
}

func TestBatchRunner_VerboseEchoesOutput(t *testing.T) {
	var out bytes.Buffer
	fake := &fakeLighthouse{fs: afero.NewMemMapFs()}

	_, err := newTestRunner(fake, WithOutput(&out)).Run(context.Background(), Options{
		Sites: []string{"https://example.com"}, Out: "/r", UseGlobal: true, Verbose: true,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "auditing https://example.com")

	out.Reset()
	_, err = newTestRunner(fake, WithOutput(&out)).Run(context.Background(), Options{
		Sites: []string{"https://example.com"}, Out: "/r", UseGlobal: true,
	})
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestBatchRunner_Cancelled(t *testing.T) {
	fake := &fakeLighthouse{fs: afero.NewMemMapFs()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(fake).Run(ctx, Options{Sites: []string{"https://example.com"}, Out: "/r"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.calls)
}

func TestBatchRunner_RequiresOutputDir(t *testing.T) {
	fake := &fakeLighthouse{fs: afero.NewMemMapFs()}
	_, err := newTestRunner(fake).Run(context.Background(), Options{Sites: []string{"https://example.com"}})
	assert.Error(t, err)
}

func TestBatchRunner_BadReport(t *testing.T) {
	fake := &fakeLighthouse{fs: afero.NewMemMapFs(), report: `{"runtimeError": {"code": "NO_FCP", "message": "The page did not paint"}}`}

	summary, err := newTestRunner(fake).Run(context.Background(), Options{
		Sites: []string{"https://example.com"}, Out: "/r", UseGlobal: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not paint")
	assert.Contains(t, summary.Sites[0].Error, "did not paint")
}

func TestBatchRunner_QuotedParamsStayWhole(t *testing.T) {
	fake := &fakeLighthouse{fs: afero.NewMemMapFs()}

	_, err := newTestRunner(fake).Run(context.Background(), Options{
		Sites:     []string{"https://example.com"},
		Out:       "/r",
		UseGlobal: true,
		Params:    `--port 9222 --chrome-flags="--headless --no-sandbox" --extra-headers '{"Cookie": "a=b"}'`,
	})
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, []string{
		"--port", "9222",
		"--chrome-flags=--headless --no-sandbox",
		"--extra-headers", `{"Cookie": "a=b"}`,
	}, fake.calls[0][4:])
}

func TestBatchRunner_UnterminatedQuote(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := &fakeLighthouse{fs: fs}

	_, err := newTestRunner(fake).Run(context.Background(), Options{
		Sites:  []string{"https://example.com"},
		Out:    "/r",
		Params: `--chrome-flags="--headless`,
	})
	assert.Error(t, err)
	assert.Empty(t, fake.calls)

	exists, err := afero.DirExists(fs, "/r")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBatchRunner_CollidingNamesGetSuffix(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := &fakeLighthouse{fs: fs, report: sampleReport}

	summary, err := newTestRunner(fake).Run(context.Background(), Options{
		Sites: []string{
			"https://example.com/a.b",
			"https://example.com/a_b",
			"http://example.com/a.b",
			"https://example.com/a.b",
		},
		Out:       "/reports",
		UseGlobal: true,
	})
	require.NoError(t, err)

	var files []string
	for _, site := range summary.Sites {
		files = append(files, site.File)
	}
	assert.Equal(t, []string{
		"example_com_a_b.report.json",
		"example_com_a_b_2.report.json",
		"example_com_a_b_3.report.json",
		"example_com_a_b_4.report.json",
	}, files)

	for _, f := range files {
		exists, err := afero.Exists(fs, "/reports/"+f)
		require.NoError(t, err)
		assert.True(t, exists, f)
	}
}
