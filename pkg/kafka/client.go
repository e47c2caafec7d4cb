// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"easy-canvas-go/internal/config"
	"easy-canvas-go/pkg/log"
	"easy-canvas-go/pkg/tasks"
)

// maxAttempts 是同一任务连续失败后放弃重试的阈值。
const maxAttempts = 3

// Producer 把课程刷新任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// PublishCourseRefresh 发送一个课程刷新任务。以 UserID 为 key，同一用户的任务落在同一分区。
func (p *Producer) PublishCourseRefresh(ctx context.Context, task tasks.CourseRefreshTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.UserID),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 消费课程刷新任务。
type Consumer struct {
	reader    *kafka.Reader
	processor tasks.Processor
	backoff   time.Duration
}

// NewConsumer 创建一个消费者，processor 负责真正执行刷新。
func NewConsumer(cfg config.KafkaConfig, processor tasks.Processor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, processor: processor, backoff: 2 * time.Second}
}

// Run 循环读取消息直到 ctx 结束。每个任务最多尝试 maxAttempts 次，之后无论成败都提交 offset。
func (c *Consumer) Run(ctx context.Context) {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.CourseRefreshTask
		if err := json.Unmarshal(m.Value, &task); err != nil || task.UserID == "" {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			c.commit(ctx, m)
			continue
		}

		if err := c.process(ctx, task); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorw("课程刷新任务多次失败，提交 offset 终止重试",
				"uid", task.UserID,
				"attempts", maxAttempts,
				"error", err,
			)
		} else {
			log.Infof("课程刷新任务处理成功: uid=%s", task.UserID)
		}
		c.commit(ctx, m)
	}
}

func (c *Consumer) process(ctx context.Context, task tasks.CourseRefreshTask) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = c.processor.Process(ctx, task); err == nil {
			return nil
		}
		log.Warnf("处理课程刷新任务失败: uid=%s, attempt=%d, Error: %v", task.UserID, attempt, err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

func brokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
