package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// ErrNoJSON is returned when a reply contains neither a fenced code block nor
// a brace-delimited object. The message is part of the response contract
// surfaced to callers.
var ErrNoJSON = errors.New("No JSON found in response")

// fencedBlockRe matches a fenced code block with an optional language tag and
// captures its body.
var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls the structured payload out of a model reply. Models wrap
// JSON in prose and code fences inconsistently, so extraction is staged:
// first a fenced code block, then the first balanced brace-delimited object,
// else failure.
func ExtractJSON(reply string) (string, error) {
	if m := fencedBlockRe.FindStringSubmatch(reply); m != nil {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" {
			return candidate, nil
		}
	}

	if candidate := firstBraceObject(reply); candidate != "" {
		return candidate, nil
	}

	return "", ErrNoJSON
}

// firstBraceObject returns the first balanced {...} span in s, or "".
// Braces inside JSON strings are skipped.
func firstBraceObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// ParsePageActions extracts and validates a vision-analysis reply. The parsed
// object must expose an actions array; a structurally valid JSON object
// without one is still a failure.
func ParsePageActions(reply string) (*types.PageActions, error) {
	payload, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	// Unmarshal into a generic map first so "actions present but not a
	// list" and "actions absent" both produce a structural error rather
	// than a silently empty result.
	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return nil, fmt.Errorf("invalid JSON in response: %w", err)
	}

	raw, ok := generic["actions"]
	if !ok {
		return nil, fmt.Errorf("parsed response is missing the actions array")
	}

	var actions []types.PageAction
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, fmt.Errorf("actions field is not a valid array: %w", err)
	}

	result := &types.PageActions{Actions: actions}
	if rawThought, ok := generic["thought"]; ok {
		// Thought is advisory; ignore it if malformed.
		_ = json.Unmarshal(rawThought, &result.Thought)
	}
	return result, nil
}
