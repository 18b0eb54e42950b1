// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/jeranaias/cardiochat/internal/llm"
)

// DefaultModel is streamed from when a Provider is built without one.
const DefaultModel = "llama3.1:8b"

// Provider streams llm requests through a Client.
type Provider struct {
	client *Client
	model  string
	logger *slog.Logger
}

// NewProvider returns an llm.Provider for model.
func NewProvider(client *Client, model string, logger *slog.Logger) *Provider {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: client, model: model, logger: logger}
}

// Model returns the model name sent with every request.
func (p *Provider) Model() string { return p.model }

// Stream implements llm.Provider. Text arrives as EventText deltas and each
// tool call as one EventToolCall.
func (p *Provider) Stream(ctx context.Context, req llm.Request, emit func(llm.Event) error) error {
	body := encodeRequest(p.model, req)
	p.logger.Debug("ollama stream start",
		slog.String("model", p.model),
		slog.Int("messages", len(body.Messages)),
		slog.Int("tools", len(body.Tools)))

	return p.client.chat(ctx, body, func(line chatLine) error {
		if line.Message.Content != "" {
			if err := emit(llm.EventText{Delta: line.Message.Content}); err != nil {
				return err
			}
		}
		for _, call := range line.Message.ToolCalls {
			ev := llm.EventToolCall{Name: call.Function.Name, Arguments: unwrapArguments(call.Function.Arguments)}
			if err := emit(ev); err != nil {
				return err
			}
		}
		if line.Done {
			p.logger.Debug("ollama stream done",
				slog.String("reason", line.DoneReason),
				slog.Int("eval_count", line.EvalCount),
				slog.Duration("took", time.Duration(line.Duration)))
		}
		return nil
	})
}

func encodeRequest(model string, req llm.Request) chatRequest {
	out := chatRequest{Model: model}
	if req.SystemInstruction != "" {
		out.Messages = append(out.Messages, wireMessage{Role: "system", Content: req.SystemInstruction})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, encodeMessage(m))
	}
	out.Tools = lo.Map(req.Tools, func(t llm.Tool, _ int) wireTool { return encodeTool(t) })
	if req.MaxOutputTokens > 0 {
		out.Options = &modelOptions{NumPredict: req.MaxOutputTokens}
	}
	return out
}

func encodeMessage(m llm.Message) wireMessage {
	msg := wireMessage{Role: m.Role, Content: m.Content, ToolName: m.ToolName}
	for _, tc := range m.ToolCalls {
		var call wireCall
		call.Function.Name = tc.Name
		call.Function.Arguments = tc.Arguments
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg
}

func encodeTool(t llm.Tool) wireTool {
	var tool wireTool
	tool.Type = "function"
	tool.Function.Name = t.Name
	tool.Function.Description = t.Description
	tool.Function.Parameters = encodeSchema(t.Parameters)
	if tool.Function.Parameters.Type == "" {
		tool.Function.Parameters.Type = "object"
	}
	return tool
}

func encodeSchema(s llm.Schema) wireSchema {
	out := wireSchema{
		Type:        s.Type,
		Description: s.Description,
		Required:    s.Required,
		MinItems:    s.MinItems,
		MaxItems:    s.MaxItems,
	}
	if s.Items != nil {
		items := encodeSchema(*s.Items)
		out.Items = &items
	}
	if len(s.Properties) > 0 {
		out.Properties = lo.MapValues(s.Properties, func(child llm.Schema, _ string) wireSchema {
			return encodeSchema(child)
		})
	}
	return out
}

// unwrapArguments accepts arguments some models send as a JSON string
// holding the object.
func unwrapArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	if raw[0] != '"' {
		return raw
	}
	var inner string
	if json.Unmarshal(raw, &inner) != nil || !json.Valid([]byte(inner)) {
		return raw
	}
	return json.RawMessage(inner)
}
