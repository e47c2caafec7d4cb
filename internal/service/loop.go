package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/pkg/llm"
	"easy-canvas-go/pkg/log"
)

// DefaultMaxToolRounds 是未配置时单次请求允许的最大模型调用轮数。
const DefaultMaxToolRounds = 5

// LoopRequest 是一次工具调用循环的输入。
type LoopRequest struct {
	UserID             string
	Model              string
	ReasoningEffort    string
	Input              []llm.InputItem
	PreviousResponseID string
	Store              *bool
	TextFormat         *llm.TextFormat
	DisableTools       bool
}

// LoopResult 是循环结束时的结果。Steps 按执行顺序记录了所有函数调用及其结果。
type LoopResult struct {
	Text       string
	ResponseID string
	Rounds     int
	Steps      []model.ChatMessage
	LastTool   string
	LastOutput string
}

// ToolLoop 驱动模型与工具之间的多轮交互，直到模型不再请求函数调用或达到轮数上限。
type ToolLoop struct {
	client    llm.Client
	tools     ToolRegistry
	sem       *semaphore.Weighted
	maxRounds int
	now       func() time.Time
}

// NewToolLoop 创建一个新的 ToolLoop。sem 在所有模型调用之间共享，用于限制并发。
func NewToolLoop(client llm.Client, tools ToolRegistry, sem *semaphore.Weighted, maxRounds int) *ToolLoop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	return &ToolLoop{client: client, tools: tools, sem: sem, maxRounds: maxRounds, now: time.Now}
}

// Run 执行循环。模型调用出错时立即返回错误，由调用方决定如何兜底。
func (l *ToolLoop) Run(ctx context.Context, req LoopRequest) (*LoopResult, error) {
	input := make([]llm.InputItem, len(req.Input))
	copy(input, req.Input)

	var defs []llm.Tool
	if !req.DisableTools && l.tools != nil {
		defs = l.tools.Definitions()
	}

	result := &LoopResult{}
	previousID := req.PreviousResponseID
	// 带 previous_response_id 时服务端已保存上下文，后续轮次只发送本轮的函数结果
	chained := previousID != ""
	for round := 1; ; round++ {
		resp, err := l.call(ctx, llm.ResponseRequest{
			Model:              req.Model,
			Input:              input,
			Tools:              defs,
			ReasoningEffort:    req.ReasoningEffort,
			PreviousResponseID: previousID,
			Store:              req.Store,
			TextFormat:         req.TextFormat,
		})
		if err != nil {
			return result, fmt.Errorf("model call failed in round %d: %w", round, err)
		}
		result.Rounds = round
		result.ResponseID = resp.ID
		result.Text = resp.OutputText

		if len(resp.FunctionCalls) == 0 {
			return result, nil
		}
		if len(defs) == 0 {
			return result, nil
		}
		if round >= l.maxRounds {
			log.Warnf("[ToolLoop] 达到最大轮数 %d, userID: %s, 未执行的函数调用: %d", l.maxRounds, req.UserID, len(resp.FunctionCalls))
			return result, nil
		}

		if chained {
			previousID = resp.ID
			input = nil
		}
		for _, fc := range resp.FunctionCalls {
			callID := fc.CallID
			if callID == "" {
				callID = "call_" + uuid.NewString()
			}
			log.Infof("[ToolLoop] 执行工具 %s, userID: %s, 参数: %s", fc.Name, req.UserID, fc.Arguments)
			output := l.tools.Execute(ctx, fc.Name, fc.Arguments, req.UserID)

			if chained {
				input = append(input, llm.FunctionCallOutputItem(callID, output))
			} else {
				input = append(input,
					llm.FunctionCallItem(callID, fc.Name, fc.Arguments),
					llm.FunctionCallOutputItem(callID, output),
				)
			}
			now := l.now().UTC()
			result.Steps = append(result.Steps,
				model.ChatMessage{Role: model.RoleAssistant, Type: model.MessageTypeFunctionCall, CallID: callID, Name: fc.Name, Arguments: fc.Arguments, Timestamp: now},
				model.ChatMessage{Role: model.RoleSystem, Type: model.MessageTypeFunctionCallOutput, CallID: callID, Name: fc.Name, Output: output, Timestamp: now},
			)
			result.LastTool = fc.Name
			result.LastOutput = output
		}
	}
}

func (l *ToolLoop) call(ctx context.Context, req llm.ResponseRequest) (*llm.Response, error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer l.sem.Release(1)
	}
	return l.client.CreateResponse(ctx, req)
}

// FallbackMessage 在模型最终没有给出文本时，根据最后一个工具的结果构造回复。
func FallbackMessage(lastTool, lastOutput string) string {
	if lastTool == "" {
		return "I wasn't able to put together a response. Could you try rephrasing your question?"
	}

	var errResult struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(lastOutput), &errResult) == nil && errResult.Error != "" {
		return "I ran into a problem retrieving that information: " + errResult.Error
	}

	var list []map[string]interface{}
	isList := json.Unmarshal([]byte(lastOutput), &list) == nil
	n := len(list)

	switch lastTool {
	case "get_courses":
		if isList {
			return fmt.Sprintf("I found %s in your Canvas account.", plural(n, "course"))
		}
	case "get_assignments":
		if isList {
			return fmt.Sprintf("I found %s.", plural(n, "assignment"))
		}
	case "get_upcoming_due_dates":
		if isList {
			return fmt.Sprintf("You have %s coming up.", plural(n, "assignment"))
		}
	case "get_announcements":
		if isList {
			return fmt.Sprintf("I found %s.", plural(n, "announcement"))
		}
	case "get_course_modules":
		if isList {
			return fmt.Sprintf("I found %s in this course.", plural(n, "module"))
		}
	case "get_module_items":
		if isList {
			return fmt.Sprintf("I found %s in this module.", plural(n, "item"))
		}
	case "get_assignment":
		var a struct {
			Name string `json:"name"`
		}
		if json.Unmarshal([]byte(lastOutput), &a) == nil && a.Name != "" {
			return fmt.Sprintf("I found the details for %q.", a.Name)
		}
	case "get_user_info":
		return "I retrieved your profile information."
	}
	return "I retrieved your Canvas data but couldn't summarize it. Please try asking again."
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
