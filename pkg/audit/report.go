package audit

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/idna"
)

// Summary describes a finished batch.
type Summary struct {
	Sites     []SiteResult `json:"sites"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Duration  string       `json:"duration"`
}

// Failed returns the results of sites that could not be audited.
func (s *Summary) Failed() []SiteResult {
	var failed []SiteResult
	for _, site := range s.Sites {
		if site.Error != "" {
			failed = append(failed, site)
		}
	}
	return failed
}

// SiteResult is the summary.json entry for one site.
type SiteResult struct {
	URL    string             `json:"url"`
	Name   string             `json:"name"`
	File   string             `json:"file"`
	HTML   string             `json:"html,omitempty"`
	Score  float64            `json:"score"`
	Detail map[string]float64 `json:"detail,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// ScoreReport reads the category scores of a lighthouse JSON report. The
// overall score is the mean of the category scores.
func ScoreReport(data []byte) (float64, map[string]float64, error) {
	if !gjson.ValidBytes(data) {
		return 0, nil, fmt.Errorf("report is not valid JSON")
	}

	if msg := gjson.GetBytes(data, "runtimeError.message"); msg.Exists() {
		return 0, nil, fmt.Errorf("lighthouse runtime error: %s", msg.String())
	}

	categories := gjson.GetBytes(data, "categories")
	if !categories.IsObject() {
		return 0, nil, fmt.Errorf("report has no categories")
	}

	detail := make(map[string]float64)
	var total float64
	categories.ForEach(func(key, value gjson.Result) bool {
		score := value.Get("score").Float()
		detail[key.String()] = score
		total += score
		return true
	})

	if len(detail) == 0 {
		return 0, nil, fmt.Errorf("report has no categories")
	}
	return total / float64(len(detail)), detail, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SiteName returns the report file stem for a site: the URL without its
// scheme, with the host in ASCII form and anything outside [A-Za-z0-9_-]
// replaced by underscores.
func SiteName(site string) string {
	name := site
	if u, err := url.Parse(site); err == nil && u.Host != "" {
		host := u.Host
		if ascii, err := idna.ToASCII(u.Hostname()); err == nil {
			host = ascii
			if port := u.Port(); port != "" {
				host += "_" + port
			}
		}
		name = host + u.EscapedPath()
		if u.RawQuery != "" {
			name += "_" + u.RawQuery
		}
	}

	name = unsafeNameChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}
