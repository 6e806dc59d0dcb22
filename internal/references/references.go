// Package references pulls web citations out of the note service's tool
// transcript. The transcript mixes search results with image results and
// frequently ships them as JSON encoded inside JSON strings, so extraction is
// best-effort: every fragment that does not look like a reference list is
// skipped and the rest are kept.
package references

import (
	"encoding/json"
	"fmt"
	"log"
)

const toolRole = "tool"

// Reference is a single cited page.
type Reference struct {
	Title string `json:"title"`
	Href  string `json:"href"`
}

// ExtractJSON decodes raw and runs Extract over it. Undecodable input yields
// no references.
func ExtractJSON(raw []byte) []Reference {
	if len(raw) == 0 {
		return []Reference{}
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("[references] payload is not JSON: %v", err)
		return []Reference{}
	}
	return Extract(payload)
}

// Extract reads the first tool message in payload and flattens the reference
// arrays it finds, in encounter order. Duplicates are kept.
func Extract(payload any) []Reference {
	refs := []Reference{}
	root, ok := payload.(map[string]any)
	if !ok {
		return refs
	}
	messages, ok := root["messages"].([]any)
	if !ok {
		return refs
	}
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if role, _ := msg["role"].(string); role != toolRole {
			continue
		}
		content, _ := msg["content"].([]any)
		for _, item := range content {
			text, ok := item.(string)
			if !ok {
				continue
			}
			parsed, ok := parseFragment(text)
			if !ok {
				continue
			}
			refs = append(refs, project(parsed)...)
		}
		// Only the first tool message carries search results.
		return refs
	}
	return refs
}

func parseFragment(text string) ([]any, bool) {
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		log.Printf("[references] skipping malformed fragment: %v", err)
		return nil, false
	}
	list, ok := decoded.([]any)
	if !ok || !isReferenceList(list) {
		return nil, false
	}
	return list, true
}

// isReferenceList classifies a list by its first element only; image search
// results carry neither href nor title.
func isReferenceList(list []any) bool {
	if len(list) == 0 {
		return false
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return false
	}
	_, hasHref := first["href"]
	_, hasTitle := first["title"]
	return hasHref && hasTitle
}

func project(list []any) []Reference {
	out := make([]Reference, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Reference{
			Title: stringField(obj["title"]),
			Href:  stringField(obj["href"]),
		})
	}
	return out
}

func stringField(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}
