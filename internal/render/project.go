// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/jeranaias/cardiochat/internal/model"
	"github.com/jeranaias/cardiochat/internal/tools"
)

// =============================================================================
// STATE PROJECTOR
// =============================================================================

// Project maps a Message Log to its Render State. It is pure: the same log
// always yields the same state.
//
// System messages are dropped. Unit ids are "{chatId}-{n}" where n is the
// message position after dropping system messages; the k-th extra result of
// a tool message gets the suffix "-{k}". Assistant messages carrying only
// tool calls yield no unit, since the paired tool message shows the result.
func Project(log model.Log) State {
	visible := lo.Filter(log.Messages, func(m model.Message, _ int) bool {
		return m.Role != model.RoleSystem
	})

	state := make(State, 0, len(visible))
	for n, msg := range visible {
		id := UnitID(log.ChatID, n)

		switch msg.Content.Kind() {
		case model.KindText:
			text, _ := msg.Content.Text()
			switch msg.Role {
			case model.RoleUser:
				state = append(state, Unit{ID: id, Display: UserMessage{Text: text}})
			case model.RoleAssistant:
				state = append(state, Unit{ID: id, Display: BotMessage{Text: StaticText(text)}})
			default:
				state = append(state, Unit{ID: id, Display: Empty{}})
			}

		case model.KindToolCall:
			// rendered by the matching tool message

		case model.KindToolResult:
			results, _ := msg.Content.ToolResults()
			for k, res := range results {
				unitID := id
				if k > 0 {
					unitID = fmt.Sprintf("%s-%d", id, k)
				}
				state = append(state, Unit{ID: unitID, Display: ToolResultDisplay(res)})
			}
		}
	}
	return state
}

// ToolResultDisplay renders one tool result. Results of unknown tools, and
// answer results that cannot be decoded, render as Empty.
func ToolResultDisplay(res model.ToolResult) Display {
	if res.ToolName != tools.AnswerToolName {
		return Empty{}
	}
	args, err := tools.DecodeResult(res.Result)
	if err != nil {
		return Empty{}
	}
	return AnswerCard(args)
}

// AnswerCard builds the final card for an answer tool result.
func AnswerCard(args tools.AnswerArgs) BotCard {
	return BotCard{Answer: args.Answer, RelatedQuestions: args.Questions()}
}

// UnitID returns the projection id of the n-th visible message.
func UnitID(chatID string, n int) string {
	return fmt.Sprintf("%s-%d", chatID, n)
}
