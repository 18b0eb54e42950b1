// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jeranaias/cardiochat/internal/llm"
	"github.com/jeranaias/cardiochat/internal/model"
)

// =============================================================================
// ANSWER WITH RELATED QUESTIONS
// =============================================================================

// AnswerToolName is the registered name of the answer tool.
const AnswerToolName = "answer-with-related-questions"

// RelatedQuestionCount is the number of follow-up questions the system
// instruction asks for.
const RelatedQuestionCount = 2

// SystemInstruction is the default instruction sent with every turn.
var SystemInstruction = strings.Join([]string{
	"You are a cardiology Q&A bot that answers patients' questions and suggests related questions.",
	fmt.Sprintf("When a user asks a question, provide an answer and exactly %d related questions.", RelatedQuestionCount),
	fmt.Sprintf("If you have related questions, call the %q tool with the answer and the related questions. Otherwise, just provide the answer.", AnswerToolName),
	"If the user requests more details or clarification, continue the conversation accordingly.",
}, "\n")

// ErrInvalidArguments is returned when tool arguments fail schema validation.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// AnswerArgs is the argument payload of the answer tool. The same value is
// stored as the tool result.
type AnswerArgs struct {
	Answer           string                  `json:"answer" validate:"required"`
	RelatedQuestions []model.RelatedQuestion `json:"relatedQuestions" validate:"required,len=2,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Definition returns the tool registered with the model provider.
func Definition() llm.Tool {
	return llm.Tool{
		Name:        AnswerToolName,
		Description: "Generate an answer and related questions.",
		Parameters: llm.Schema{
			Type: "object",
			Properties: map[string]llm.Schema{
				"answer": {
					Type:        "string",
					Description: "The answer to the user's question",
				},
				"relatedQuestions": {
					Type:        "array",
					Description: "Follow-up questions the user may ask next",
					MinItems:    llm.IntPtr(RelatedQuestionCount),
					MaxItems:    llm.IntPtr(RelatedQuestionCount),
					Items: &llm.Schema{
						Type: "object",
						Properties: map[string]llm.Schema{
							"question": {Type: "string", Description: "The related question"},
						},
						Required: []string{"question"},
					},
				},
			},
			Required: []string{"answer", "relatedQuestions"},
		},
	}
}

// ParseAnswer decodes and validates raw tool arguments. Unknown fields are
// rejected. Every failure wraps ErrInvalidArguments.
func ParseAnswer(raw json.RawMessage) (AnswerArgs, error) {
	var args AnswerArgs

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return AnswerArgs{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := validate.Struct(args); err != nil {
		return AnswerArgs{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	for i, q := range args.RelatedQuestions {
		if strings.TrimSpace(q.Question) == "" {
			return AnswerArgs{}, fmt.Errorf("%w: related question %d is blank", ErrInvalidArguments, i)
		}
	}
	return args, nil
}

// DecodeResult reads a stored answer tool result. Stored results are not
// re-validated.
func DecodeResult(raw json.RawMessage) (AnswerArgs, error) {
	var args AnswerArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return AnswerArgs{}, fmt.Errorf("decode %s result: %w", AnswerToolName, err)
	}
	return args, nil
}

// Questions returns the question texts.
func (a AnswerArgs) Questions() []string {
	out := make([]string, 0, len(a.RelatedQuestions))
	for _, q := range a.RelatedQuestions {
		out = append(out, q.Question)
	}
	return out
}
