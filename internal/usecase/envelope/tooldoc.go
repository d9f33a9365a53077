package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"yinsen/internal/domain"
)

// DecodeToolDocument decodes the tool-handler agent's output as a JSON tool
// document. Empty input yields an empty document. Anything that is not a JSON
// object returns an error wrapping domain.ErrMalformedToolResponse.
func DecodeToolDocument(text string) (domain.ToolRequest, error) {
	var doc domain.ToolRequest

	body := stripFences(strings.TrimSpace(text))
	if body == "" {
		return doc, nil
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return domain.ToolRequest{}, fmt.Errorf("%w: %v", domain.ErrMalformedToolResponse, err)
	}
	// Trailing garbage after the object is as bad as a broken object.
	if dec.More() {
		return domain.ToolRequest{}, fmt.Errorf("%w: unexpected data after JSON document", domain.ErrMalformedToolResponse)
	}
	return doc, nil
}

// stripFences removes a surrounding ``` or ```json markdown fence.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line, if any.
		if first := strings.TrimSpace(s[:nl]); first == "" || !strings.ContainsAny(first, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
