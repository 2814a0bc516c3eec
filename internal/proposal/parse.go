package proposal

import (
	"encoding/json"
	"fmt"
	"strings"

	"offload/internal/openai"
)

// DecodeResult recovers the envelope bytes from a service response.
// The response shape is not fully predictable, so candidates are tried
// in strict order: a pre-parsed structured field, then any content
// entry whose cleaned text parses to an object with a proposal key,
// then the first entry's raw text. A candidate without a proposal
// field fails the contract.
func DecodeResult(res openai.Result) (json.RawMessage, error) {
	if len(res.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrContractViolation)
	}

	for _, part := range res.Parts {
		if len(part.Parsed) == 0 {
			continue
		}
		if hasProposalKey(part.Parsed) {
			return part.Parsed, nil
		}
		return nil, fmt.Errorf("%w: pre-parsed output has no proposal field", ErrContractViolation)
	}

	for _, part := range res.Parts {
		candidate, err := parseObject(part.Text)
		if err != nil {
			continue
		}
		if hasProposalKey(candidate) {
			return candidate, nil
		}
	}

	candidate, err := parseObject(res.Parts[0].Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	if !hasProposalKey(candidate) {
		return nil, fmt.Errorf("%w: output has no proposal field", ErrContractViolation)
	}
	return candidate, nil
}

func hasProposalKey(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, ok := obj["proposal"]
	return ok
}

// parseObject strips decoration and decodes the remaining text as a
// JSON object.
func parseObject(text string) (json.RawMessage, error) {
	cleaned := stripFences(strings.TrimSpace(text))
	cleaned = stripWrappingQuotes(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil, fmt.Errorf("empty content")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	return json.RawMessage(cleaned), nil
}

// stripFences removes one Markdown code-fence wrapper, with or without
// a json language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	body = strings.TrimPrefix(body, "json")
	body = strings.TrimPrefix(body, "\n")
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// stripWrappingQuotes removes a single layer of quotes around the
// whole payload. Quoted JSON inside the object is untouched.
func stripWrappingQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		// A quoted JSON document escapes its inner quotes.
		if strings.Contains(inner, `\"`) {
			var unquoted string
			if err := json.Unmarshal([]byte(s), &unquoted); err == nil {
				return unquoted
			}
		}
		return inner
	}
	return s
}
