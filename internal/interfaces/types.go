package interfaces

import "context"

// TranslateRequestFunc converts a request payload from one schema to another.
type TranslateRequestFunc func(model string, rawJSON []byte, stream bool) []byte

// TranslateResponseFunc converts one streaming payload between schemas.
// Per-request transformer state lives behind param and is threaded by the
// caller across every frame of a single stream.
type TranslateResponseFunc func(ctx context.Context, model string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) []string

// TranslateResponseNonStreamFunc converts a complete non-stream response.
type TranslateResponseNonStreamFunc func(ctx context.Context, model string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) string

// TranslateResponseCloseFunc runs once when the upstream stream terminates,
// before the terminator is relayed. It may return trailing payloads that
// flush any state still held in param.
type TranslateResponseCloseFunc func(param *any) []string

// TranslateResponse groups the streaming and non-streaming transforms.
type TranslateResponse struct {
	Stream      TranslateResponseFunc
	NonStream   TranslateResponseNonStreamFunc
	StreamClose TranslateResponseCloseFunc
}
