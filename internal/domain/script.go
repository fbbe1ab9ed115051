package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// HookScript is the structured output of the script generation stage and the
// prompt contract for video generation.
type HookScript struct {
	HookTitle    string   `json:"hook_title"`
	VisualPrompt string   `json:"visual_prompt"`
	ShotList     []string `json:"shot_list"`
	Narration    string   `json:"narration"`
	StyleTags    []string `json:"style_tags"`
	SafetyNotes  string   `json:"safety_notes"`
}

var scriptRequiredFields = []string{
	"hook_title",
	"visual_prompt",
	"shot_list",
	"narration",
	"style_tags",
	"safety_notes",
}

// ParseHookScript validates and decodes a generated script payload. LLM
// output is untrusted; missing fields or wrong shapes are rejected rather
// than defaulted so a bad generation fails the stage visibly.
func ParseHookScript(payload map[string]any) (*HookScript, error) {
	var missing []string
	for _, field := range scriptRequiredFields {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("hook script missing fields: %s", strings.Join(missing, ", "))
	}

	if _, ok := payload["shot_list"].([]any); !ok {
		return nil, fmt.Errorf("hook script field shot_list must be an array")
	}
	if _, ok := payload["style_tags"].([]any); !ok {
		return nil, fmt.Errorf("hook script field style_tags must be an array")
	}
	for _, field := range []string{"hook_title", "visual_prompt", "narration", "safety_notes"} {
		s, ok := payload[field].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("hook script field %s must be a non-empty string", field)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode hook script: %w", err)
	}
	var script HookScript
	if err := json.Unmarshal(raw, &script); err != nil {
		return nil, fmt.Errorf("decode hook script: %w", err)
	}
	return &script, nil
}
