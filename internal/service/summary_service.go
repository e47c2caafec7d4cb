package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"

	"easy-canvas-go/pkg/llm"
	"easy-canvas-go/pkg/log"
)

// SummaryService 对作业描述生成简短摘要。
type SummaryService interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type summaryService struct {
	summarizer llm.Summarizer
	sem        *semaphore.Weighted
}

// NewSummaryService 创建一个新的 SummaryService。summarizer 为 nil 时接口返回 ErrSummarizerUnavailable。
func NewSummaryService(summarizer llm.Summarizer, sem *semaphore.Weighted) SummaryService {
	return &summaryService{summarizer: summarizer, sem: sem}
}

func (s *summaryService) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text is required", ErrBadRequest)
	}
	if s.summarizer == nil {
		return "", ErrSummarizerUnavailable
	}
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer s.sem.Release(1)
	}

	summary, err := s.summarizer.Summarize(ctx, SummarizeSystemPrompt, SummarizePromptPrefix+text)
	if err != nil {
		log.Errorf("[SummaryService] 生成摘要失败: %v", err)
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
