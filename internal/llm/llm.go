// Package llm describes the completion service boundary: what is sent to a
// hosted model and the shape of what comes back.
//
// The response types mirror the candidate/content/part nesting of hosted
// chat APIs. Nothing in a Response is trusted until it has gone through
// ExtractReply.
package llm

import (
	"context"

	"github.com/iudanet/gophchat/internal/models"
)

// Client is a completion service. Implementations must be safe for
// concurrent use; calls may be slow and may fail.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Options are generation settings passed with every request.
type Options struct {
	Temperature    float64
	MaxTokens      int
	ThinkingBudget int
}

// Request is a single completion call.
type Request struct {
	SystemInstruction string
	Contents          []models.Turn
	Options           Options
}

// Part is a fragment of a candidate's content.
type Part struct {
	Text string
}

// Content is the body of a candidate.
type Content struct {
	Role  string
	Parts []Part
}

// Candidate is one alternative reply. Content may be nil when the
// upstream blocked or truncated the answer.
type Candidate struct {
	Content      *Content
	FinishReason string
}

// Response is the raw upstream answer.
type Response struct {
	Candidates []*Candidate
}
