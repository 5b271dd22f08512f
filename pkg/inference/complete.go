package inference

import (
	"context"

	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/llm/parser"
	"github.com/entrhq/pilot/pkg/types"
)

// complete runs req against p. Reasoning blocks never reach the caller:
// streamed chunks pass through a ThinkFilter and final text is stripped.
func complete(ctx context.Context, p llm.Provider, req Request) (string, error) {
	p = withModel(p, req.Model)
	if req.OutputSchema != nil {
		return completeStructured(ctx, p, req)
	}

	if req.Stream {
		stream, err := p.StreamCompletion(ctx, req.messages(false))
		if err != nil {
			return "", err
		}
		filter := parser.NewThinkFilter()
		var onChunk func(string)
		if req.OnChunk != nil {
			onChunk = func(delta string) {
				if _, visible := filter.Write(delta); visible != "" {
					req.OnChunk(visible)
				}
			}
		}
		content, err := llm.Collect(stream, onChunk)
		if err != nil {
			return "", err
		}
		if _, tail := filter.Flush(); tail != "" && req.OnChunk != nil {
			req.OnChunk(tail)
		}
		return parser.StripReasoning(content), nil
	}

	msg, err := p.Complete(ctx, req.messages(false))
	if err != nil {
		return "", err
	}
	return parser.StripReasoning(msg.Content), nil
}

func completeStructured(ctx context.Context, p llm.Provider, req Request) (string, error) {
	sc, canStructure := p.(llm.StructuredCompleter)
	native := canStructure && p.GetModelInfo() != nil && p.GetModelInfo().SupportsSchema
	msgs := req.messages(!native)

	var (
		msg *types.Message
		err error
	)
	if canStructure {
		msg, err = sc.CompleteStructured(ctx, msgs, req.schemaName(), req.OutputSchema)
	} else {
		msg, err = p.Complete(ctx, msgs)
	}
	if err != nil {
		return "", err
	}

	doc, perr := parser.ExtractJSON(msg.Content)
	if perr != nil {
		return "", types.NewResponseParseError(msg.Content, perr)
	}
	return doc, nil
}

// withModel swaps in the requested model when the provider can clone itself.
// Providers that cannot keep their configured model.
func withModel(p llm.Provider, model string) llm.Provider {
	if model == "" || model == p.GetModel() {
		return p
	}
	if c, ok := p.(llm.ModelCloner); ok {
		return c.CloneWithModel(model)
	}
	debugLog.Warnf("Provider %s cannot switch to model %s", p.GetModel(), model)
	return p
}
