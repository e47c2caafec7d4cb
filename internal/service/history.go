package service

import (
	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/llm"
)

// 上下文预算划分：历史消息占 75%，其余留给模型回复。
const (
	HistoryBudgetRatio  = 0.75
	ResponseBudgetRatio = 0.25
)

// EstimateTokens 粗略估算文本的 token 数，约 4 个字符一个 token。
// 非空文本至少计 1；空文本计 0，空的工具占位消息不占用预算。
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if n := len(text) / 4; n > 1 {
		return n
	}
	return 1
}

// HistoryBudget 返回给定上下文窗口中可用于历史消息的 token 数。
func HistoryBudget(maxContextTokens int) int {
	return int(float64(maxContextTokens) * HistoryBudgetRatio)
}

func messageTokens(m model.ChatMessage) int {
	switch m.Kind() {
	case model.MessageTypeFunctionCall:
		return EstimateTokens(m.Name + m.Arguments)
	case model.MessageTypeFunctionCallOutput:
		return EstimateTokens(m.Output)
	default:
		return EstimateTokens(m.Content)
	}
}

// TruncateMessages 保留能放进 maxTokens 的最近消息。
// 首条 system 消息总是保留且最先计入预算；从最新的消息往前取，遇到第一条放不下的就停止。
func TruncateMessages(messages []model.ChatMessage, maxTokens int) []model.ChatMessage {
	if len(messages) == 0 {
		return messages
	}

	var head []model.ChatMessage
	history := messages
	remaining := maxTokens
	if messages[0].Role == model.RoleSystem {
		head = messages[:1]
		history = messages[1:]
		remaining -= messageTokens(messages[0])
	}
	if len(history) == 0 {
		return messages
	}

	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := messageTokens(history[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		start = i
	}

	out := make([]model.ChatMessage, 0, len(head)+len(history)-start)
	out = append(out, head...)
	out = append(out, history[start:]...)
	return out
}

// PairFunctionCalls 删除失去配对的 function_call 或 function_call_output，
// 保证回放给模型的调用与结果成对出现。
func PairFunctionCalls(messages []model.ChatMessage) []model.ChatMessage {
	calls := make(map[string]bool)
	outputs := make(map[string]bool)
	for _, m := range messages {
		switch m.Kind() {
		case model.MessageTypeFunctionCall:
			calls[m.CallID] = true
		case model.MessageTypeFunctionCallOutput:
			outputs[m.CallID] = true
		}
	}

	out := make([]model.ChatMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Kind() {
		case model.MessageTypeFunctionCall:
			if m.CallID == "" || !outputs[m.CallID] {
				continue
			}
		case model.MessageTypeFunctionCallOutput:
			if m.CallID == "" || !calls[m.CallID] {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// toInputItems 把存储的消息转换为模型输入，空文本消息被跳过。
func toInputItems(messages []model.ChatMessage) []llm.InputItem {
	items := make([]llm.InputItem, 0, len(messages))
	for _, m := range messages {
		switch m.Kind() {
		case model.MessageTypeFunctionCall:
			items = append(items, llm.FunctionCallItem(m.CallID, m.Name, m.Arguments))
		case model.MessageTypeFunctionCallOutput:
			items = append(items, llm.FunctionCallOutputItem(m.CallID, m.Output))
		default:
			if m.Content == "" {
				continue
			}
			role := m.Role
			if role == "" {
				role = model.RoleUser
			}
			items = append(items, llm.Message(role, m.Content))
		}
	}
	return items
}
