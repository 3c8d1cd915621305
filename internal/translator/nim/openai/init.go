package openai

import (
	"github.com/ricejack10/openai-nim-proxy2/internal/constant"
	"github.com/ricejack10/openai-nim-proxy2/internal/interfaces"
	"github.com/ricejack10/openai-nim-proxy2/internal/translator/translator"
)

func init() {
	translator.Register(
		constant.OpenAI,
		constant.NIM,
		ConvertOpenAIRequestToNIM,
		interfaces.TranslateResponse{
			Stream:      ConvertNIMResponseToOpenAI,
			NonStream:   ConvertNIMResponseToOpenAINonStream,
			StreamClose: CloseNIMResponseStream,
		},
	)
}
