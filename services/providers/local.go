package providers

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// LocalDispatcher is the always-available last-resort backend. It produces a
// minimal canned completion so callers get a degraded answer instead of a
// hard failure when every upstream tier is exhausted.
type LocalDispatcher struct {
	name  string
	model string
}

// NewLocalDispatcher creates a local last-resort dispatcher.
func NewLocalDispatcher(name, model string) *LocalDispatcher {
	return &LocalDispatcher{name: name, model: model}
}

// Name returns the backend identifier.
func (d *LocalDispatcher) Name() string {
	return d.name
}

// Dispatch returns a canned response acknowledging the last message.
func (d *LocalDispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	return &Response{
		ID:          uuid.NewString(),
		Content:     fmt.Sprintf("service degraded: unable to process %q with a full-capability model", truncate(last, 80)),
		Model:       d.model,
		InputTokens: len(last) / 4,
	}, nil
}

// truncate cuts s to at most n bytes, backing up so a multi-byte rune is
// never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// StubDispatcher delegates to a function. Test use.
type StubDispatcher struct {
	DispatchName string
	Fn           func(ctx context.Context, req *Request) (*Response, error)
}

// Name returns the backend identifier.
func (d *StubDispatcher) Name() string {
	return d.DispatchName
}

// Dispatch invokes the stub function.
func (d *StubDispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	return d.Fn(ctx, req)
}
