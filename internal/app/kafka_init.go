package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/messaging/kafka"
)

// parseBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func parseBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, clientID string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, clientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers возвращает паблишер событий и DLQ-паблишер (nil, если DLQ topic пуст).
func outboxPublishers(producer *kafka.Producer, cfg Config) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return nil, nil
	}
	publisher := kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)
	if cfg.KafkaDLQTopic == "" {
		return publisher, nil
	}
	return publisher, kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
