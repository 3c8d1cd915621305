// Package translator maintains the registry of payload transforms between
// API formats. Transforms are registered by (from, to) format pair during
// package init and looked up per request by the upstream clients.
package translator

import (
	"context"

	"github.com/ricejack10/openai-nim-proxy2/internal/interfaces"
	log "github.com/sirupsen/logrus"
)

var (
	Requests  map[string]map[string]interfaces.TranslateRequestFunc
	Responses map[string]map[string]interfaces.TranslateResponse
)

func init() {
	Requests = make(map[string]map[string]interfaces.TranslateRequestFunc)
	Responses = make(map[string]map[string]interfaces.TranslateResponse)
}

func Register(from, to string, request interfaces.TranslateRequestFunc, response interfaces.TranslateResponse) {
	log.Debugf("Registering translator from %s to %s", from, to)
	if _, ok := Requests[from]; !ok {
		Requests[from] = make(map[string]interfaces.TranslateRequestFunc)
	}
	Requests[from][to] = request

	if _, ok := Responses[from]; !ok {
		Responses[from] = make(map[string]interfaces.TranslateResponse)
	}
	Responses[from][to] = response
}

func Request(from, to, modelName string, rawJSON []byte, stream bool) []byte {
	if translate, ok := Requests[from][to]; ok {
		return translate(modelName, rawJSON, stream)
	}
	return rawJSON
}

func NeedConvert(from, to string) bool {
	_, ok := Responses[from][to]
	return ok
}

func Response(from, to string, ctx context.Context, modelName string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) []string {
	if translate, ok := Responses[from][to]; ok && translate.Stream != nil {
		return translate.Stream(ctx, modelName, originalRequestRawJSON, requestRawJSON, rawJSON, param)
	}
	return []string{string(rawJSON)}
}

// ResponseClose runs the registered stream-close hook for the pair. It is
// called exactly once per stream, when the terminator record arrives, and
// returns any trailing payloads to emit before the terminator is relayed.
func ResponseClose(from, to string, param *any) []string {
	if translate, ok := Responses[from][to]; ok && translate.StreamClose != nil {
		return translate.StreamClose(param)
	}
	return nil
}

func ResponseNonStream(from, to string, ctx context.Context, modelName string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) string {
	if translate, ok := Responses[from][to]; ok && translate.NonStream != nil {
		return translate.NonStream(ctx, modelName, originalRequestRawJSON, requestRawJSON, rawJSON, param)
	}
	return string(rawJSON)
}
