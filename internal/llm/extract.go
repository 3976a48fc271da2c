package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when an upstream response has no usable
// text in its first candidate.
var ErrMalformedResponse = errors.New("malformed upstream response")

// ExtractReply validates resp and returns the trimmed text of the first
// part of the first candidate.
func ExtractReply(resp *Response) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return "", fmt.Errorf("%w: candidate has no content", ErrMalformedResponse)
	}
	if len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: content has no parts", ErrMalformedResponse)
	}

	text := strings.TrimSpace(candidate.Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrMalformedResponse)
	}

	return text, nil
}
