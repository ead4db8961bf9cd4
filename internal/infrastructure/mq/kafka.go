package mq

import (
	"referralpay/internal/config"
	"referralpay/internal/logging"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher 消息发布接口，OutboxSender 只依赖这个接口
type Publisher interface {
	Publish(topic, key, value string) error
	Close() error
}

// KafkaPublisher 基于 sarama 同步生产者的实现
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) *KafkaPublisher {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		logging.Logger.Fatal("创建 Kafka 生产者失败", zap.Strings("brokers", cfg.Brokers), zap.Error(err))
	}

	logging.Logger.Info("Kafka 生产者创建成功", zap.Strings("brokers", cfg.Brokers))
	return NewKafkaPublisher(producer)
}

// Publish 发送消息到 Kafka，key 相同的消息落在同一分区保证顺序
func (p *KafkaPublisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
