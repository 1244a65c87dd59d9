package webhooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goliatone/go-notify/core"
)

const defaultMaxBodyBytes int64 = 64 << 10

type Processor struct {
	Verifier     core.EventVerifier
	Handler      core.EventHandler
	MaxBodyBytes int64
}

func NewProcessor(verifier core.EventVerifier, handler core.EventHandler) *Processor {
	return &Processor{
		Verifier:     verifier,
		Handler:      handler,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

// Process verifies req.Body and applies the event. The result status code is
// 401 for any verification failure and 500 for dispatch failures.
func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Verifier == nil || p.Handler == nil {
		return core.InboundResult{StatusCode: http.StatusInternalServerError},
			core.InternalError("webhooks: processor requires verifier and handler", nil)
	}

	if limit := p.maxBodyBytes(); int64(len(req.Body)) > limit {
		err := core.AuthenticationError(
			fmt.Errorf("webhooks: body of %d bytes exceeds limit of %d", len(req.Body), limit),
			map[string]any{"surface": req.Surface},
		)
		return core.InboundResult{
			StatusCode: http.StatusUnauthorized,
			Metadata:   map[string]any{"rejected": true, "reason": "body_too_large"},
		}, err
	}

	event, err := p.Verifier.Verify(ctx, req.Body)
	if err != nil {
		if !core.IsAuthentication(err) {
			err = core.AuthenticationError(err, nil)
		}
		return core.InboundResult{
			StatusCode: http.StatusUnauthorized,
			Metadata:   map[string]any{"rejected": true},
		}, err
	}

	metadata := map[string]any{
		"fid":     event.Recipient().FID,
		"app_fid": event.Recipient().AppFID,
		"event":   string(event.Kind()),
	}
	if err := p.Handler.HandleEvent(ctx, event); err != nil {
		return core.InboundResult{
			StatusCode: http.StatusInternalServerError,
			Metadata:   metadata,
		}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}

func (p *Processor) maxBodyBytes() int64 {
	if p != nil && p.MaxBodyBytes > 0 {
		return p.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}
