package ocr

import (
	"context"
	"fmt"
	"strings"

	"synapse/pkg/config"
	"synapse/pkg/llm"
	"synapse/pkg/tools"
)

const visionPrompt = "Transcribe every piece of text visible in this document exactly as written. " +
	"Keep line breaks. Render tables as markdown tables. Output only the transcription."

// Vision transcribes images with a multimodal language model.
type Vision struct {
	Client llm.LLMClient
}

func newVisionFromConfig(_ config.OCRConfig, deps Deps) (tools.OCRExtractor, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("ocr: vision provider needs an llm client")
	}
	return &Vision{Client: deps.LLM}, nil
}

func (v *Vision) Recognize(ctx context.Context, data []byte, mediaType string) (string, error) {
	if len(data) == 0 {
		return "", tools.Errorf(tools.KindOCRFailed, "ocr.vision", "empty input")
	}
	msg := llm.NewUserMessage(visionPrompt)
	msg.AddContentBlock(llm.NewImageBlock(data, mediaType))

	text, err := llm.Generate(ctx, v.Client, []llm.Message{msg}, nil)
	if err != nil {
		return "", &tools.Error{Kind: tools.KindOCRFailed, Op: "ocr.vision", Msg: "the vision model could not read the document", Err: err}
	}
	return strings.TrimSpace(llm.StripCodeFence(text)), nil
}
