// Package jsonx holds tolerant JSON extraction helpers shared by the
// provider clients. Upstream response shapes drift across API versions, so
// the clients search for known keys instead of binding to one schema.
package jsonx

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// DeepFind walks nested maps and slices collecting every value stored under
// one of the given keys, in encounter order.
func DeepFind(data any, keys ...string) []any {
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	var found []any
	var walk func(any)
	walk = func(node any) {
		switch v := node.(type) {
		case map[string]any:
			for k, val := range v {
				if _, ok := keySet[k]; ok {
					found = append(found, val)
				}
				walk(val)
			}
		case []any:
			for _, item := range v {
				walk(item)
			}
		}
	}
	walk(data)
	return found
}

// FirstString returns the first non-blank string among values, trimmed.
func FirstString(values []any) string {
	for _, v := range values {
		if s, ok := v.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?")
	fenceClose = regexp.MustCompile("```$")
	objectRe   = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractFirstJSONObject pulls the first JSON object out of model output,
// stripping markdown code fences and surrounding prose.
func ExtractFirstJSONObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty model output")
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimSpace(fenceOpen.ReplaceAllString(text, ""))
		text = strings.TrimSpace(fenceClose.ReplaceAllString(text, ""))
	}

	var direct map[string]any
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		return direct, nil
	}

	match := objectRe.FindString(text)
	if match == "" {
		return nil, errors.New("no json object found in model output")
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, errors.New("no json object found in model output")
	}
	return parsed, nil
}
