package config

import (
	"strconv"
	"strings"
)

// PassthroughPrefix marks a command line token as a browser launch key.
const PassthroughPrefix = "--puppeteer-"

// ParsePassthrough maps marked tokens to launch keys. A marked token takes
// the following token as its value unless that token is itself marked or
// missing, in which case the key is set to "true".
func ParsePassthrough(tokens []string) map[string]string {
	flags := make(map[string]string)
	for i, token := range tokens {
		if !strings.HasPrefix(token, PassthroughPrefix) {
			continue
		}
		key := strings.TrimPrefix(token, PassthroughPrefix)
		value := "true"
		if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], PassthroughPrefix) {
			value = tokens[i+1]
		}
		flags[key] = value
	}
	return flags
}

// SplitPassthrough separates marked tokens, and the value following each of
// them, from the arguments meant for the flag parser. A value is any token
// not starting with "-", or a number such as -1. The token after a marked
// one is always taken as its value when it qualifies, positional arguments
// included.
func SplitPassthrough(args []string) (known, passthrough []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			known = append(known, args[i:]...)
			break
		}
		if !strings.HasPrefix(arg, PassthroughPrefix) {
			known = append(known, arg)
			continue
		}
		passthrough = append(passthrough, arg)
		if i+1 < len(args) && isPassthroughValue(args[i+1]) {
			i++
			passthrough = append(passthrough, args[i])
		}
	}
	return known, passthrough
}

// isPassthroughValue reports whether a token following a marked one is its
// value rather than a flag.
func isPassthroughValue(token string) bool {
	if !strings.HasPrefix(token, "-") {
		return true
	}
	_, err := strconv.ParseFloat(token, 64)
	return err == nil
}

// MergePassthrough parses each layer of marked tokens on its own and merges
// the keys, later layers winning. The result is re-encoded as key and value
// token pairs in order of first appearance, so a bare key closing one layer
// never takes the first token of the next as its value.
func MergePassthrough(layers ...[]string) []string {
	var order []string
	merged := make(map[string]string)
	for _, layer := range layers {
		for _, token := range layer {
			if !strings.HasPrefix(token, PassthroughPrefix) {
				continue
			}
			key := strings.TrimPrefix(token, PassthroughPrefix)
			if _, seen := merged[key]; !seen {
				order = append(order, key)
				merged[key] = ""
			}
		}
		for key, value := range ParsePassthrough(layer) {
			merged[key] = value
		}
	}

	if len(order) == 0 {
		return nil
	}
	tokens := make([]string, 0, 2*len(order))
	for _, key := range order {
		tokens = append(tokens, PassthroughPrefix+key, merged[key])
	}
	return tokens
}
