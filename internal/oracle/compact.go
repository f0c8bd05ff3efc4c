package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const ellipsis = "..."

var whitespaceRe = regexp.MustCompile(`\s+`)

// ClampText collapses a value to a compact single-line string with a length
// limit. Returns "" for nil or all-whitespace input.
func ClampText(value any, maxLen int) string {
	if value == nil {
		return ""
	}

	var text string
	switch v := value.(type) {
	case string:
		text = v
	case []string:
		text = strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		text = strings.Join(parts, ", ")
	default:
		text = fmt.Sprintf("%v", v)
	}

	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return ""
	}
	if len(text) > maxLen {
		trimmed := strings.TrimRight(text[:maxLen-1], " ")
		return trimmed + ellipsis
	}
	return text
}

// CompactJSON serializes a map to indented JSON with per-field and total
// length limits, for safe embedding in prompts. Keys are emitted in sorted
// order so output is deterministic.
func CompactJSON(data map[string]any, maxFieldLen, maxTotalChars int) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{\n")
	for i, k := range keys {
		clamped := ClampText(data[k], maxFieldLen)
		var encoded []byte
		if clamped == "" && data[k] == nil {
			encoded = []byte("null")
		} else {
			encoded, _ = json.Marshal(clamped)
		}
		keyJSON, _ := json.Marshal(k)
		fmt.Fprintf(&sb, "  %s: %s", keyJSON, encoded)
		if i < len(keys)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")

	serialized := sb.String()
	if len(serialized) <= maxTotalChars {
		return serialized
	}
	return strings.TrimRight(serialized[:maxTotalChars-1], " ") + ellipsis
}

// CompactJobs builds a compact JSON array representation of job records for
// prompting, capping the number of jobs, per-field length, and total size.
func CompactJobs(jobs []map[string]any, maxJobs, maxFieldLen, maxTotalChars int) string {
	if len(jobs) > maxJobs {
		jobs = jobs[:maxJobs]
	}

	trimmed := make([]map[string]string, 0, len(jobs))
	for _, job := range jobs {
		entry := make(map[string]string, len(job))
		for key, value := range job {
			if value == nil {
				continue
			}
			if clamped := ClampText(value, maxFieldLen); clamped != "" {
				entry[key] = clamped
			}
		}
		trimmed = append(trimmed, entry)
	}

	serialized, err := json.MarshalIndent(trimmed, "", "  ")
	if err != nil {
		return "[]"
	}
	if len(serialized) <= maxTotalChars {
		return string(serialized)
	}
	return strings.TrimRight(string(serialized[:maxTotalChars-1]), " ") + ellipsis
}

// StripJSONFences removes common markdown code fences around JSON payloads.
func StripJSONFences(text string) string {
	stripped := strings.TrimSpace(text)
	stripped = strings.TrimPrefix(stripped, "```json")
	stripped = strings.TrimPrefix(stripped, "```")
	stripped = strings.TrimSuffix(stripped, "```")
	return strings.TrimSpace(stripped)
}

// EstimateTokens provides a rough token count using the 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
