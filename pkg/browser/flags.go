package browser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// devtoolsSwitch opens DevTools in every tab, the Chromium side of the
// devtools launch key.
const devtoolsSwitch = "--auto-open-devtools-for-tabs"

// Keys handled outside of ApplyFlags, LaunchOptions carries them.
var reservedFlags = map[string]bool{
	"args":           true,
	"executablePath": true,
}

// ApplyFlags maps passthrough launch keys onto playwright launch options.
// It returns the keys it does not know so the caller can report them.
// A value that cannot be parsed for its key is an error.
func ApplyFlags(launch *playwright.BrowserTypeLaunchPersistentContextOptions, flags map[string]string) (ignored []string, err error) {
	keys := make([]string, 0, len(flags))
	for key := range flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := flags[key]
		switch key {
		case "headless":
			launch.Headless, err = parseBool(key, value)
		case "devtools":
			var open *bool
			if open, err = parseBool(key, value); err == nil && *open {
				launch.Args = append(launch.Args, devtoolsSwitch)
			}
		case "chromiumSandbox":
			launch.ChromiumSandbox, err = parseBool(key, value)
		case "ignoreDefaultArgs":
			launch.IgnoreAllDefaultArgs, err = parseBool(key, value)
		case "slowMo":
			launch.SlowMo, err = parseFloat(key, value)
		case "timeout":
			launch.Timeout, err = parseFloat(key, value)
		case "channel":
			launch.Channel = playwright.String(value)
		case "downloadsPath":
			launch.DownloadsPath = playwright.String(value)
		case "tracesDir":
			launch.TracesDir = playwright.String(value)
		default:
			if !reservedFlags[key] {
				ignored = append(ignored, key)
			}
		}
		if err != nil {
			return ignored, err
		}
	}

	return ignored, nil
}

func parseBool(key, value string) (*bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid value %q for launch flag %s: %w", value, key, err)
	}
	return playwright.Bool(b), nil
}

func parseFloat(key, value string) (*float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q for launch flag %s: %w", value, key, err)
	}
	return playwright.Float(f), nil
}
