// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/pkg/log"
	"ask-pdf-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor 解耦 Kafka 消费者与具体的入库实现。
type TaskProcessor interface {
	ProcessTask(ctx context.Context, task tasks.IngestionTask) error
}

// Producer 发送入库任务。
type Producer struct {
	writer *kafka.Writer
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Enqueue 发送一个入库任务，以 DocumentID 作为消息 key，保证同一文档的任务有序。
func (p *Producer) Enqueue(ctx context.Context, task tasks.IngestionTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理入库任务，阻塞直到 ctx 被取消。
// 入库只尝试一次，无论成功与否都会提交 offset：失败结果已经记录在文档状态中，需要用户重新上传。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者收到退出信号")
			} else {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		consume(ctx, m, processor, r)
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// consume 处理一条消息并提交 offset。处理失败的消息同样提交，不会重新投递。
func consume(ctx context.Context, m kafka.Message, processor TaskProcessor, c committer) bool {
	ok := handleMessage(ctx, m, processor)
	if !ok {
		log.Warnf("Kafka 消息 offset %d 处理失败, 不重试, 直接提交", m.Offset)
	}
	if err := c.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
	return ok
}

// handleMessage 解析并处理单条消息。返回 false 表示消息格式错误或处理失败。
func handleMessage(ctx context.Context, m kafka.Message, processor TaskProcessor) bool {
	log.Infof("收到 Kafka 消息: offset %d", m.Offset)

	var task tasks.IngestionTask
	if err := json.Unmarshal(m.Value, &task); err != nil || task.DocumentID == "" || task.ObjectName == "" {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return false
	}

	log.Infof("开始处理入库任务: TaskID=%s, DocumentID=%s, FileName=%s", task.TaskID, task.DocumentID, task.FileName)
	if err := processor.ProcessTask(ctx, task); err != nil {
		log.Errorf("处理入库任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)
		return false
	}
	log.Infof("入库任务处理成功: DocumentID=%s", task.DocumentID)
	return true
}
