package repository

import (
	"context"
	"time"

	"RiskPulse/internal/domain/models"
	pkgkafka "RiskPulse/pkg/kafka"
)

// MessageProducer is the part of pkg/kafka.Producer the publisher needs.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...pkgkafka.Header) error
	Close() error
}

// KafkaReportPublisher sends every generated report, keyed by report name,
// to the export topic.
type KafkaReportPublisher struct {
	producer MessageProducer
	topic    string
}

func NewKafkaReportPublisher(producer MessageProducer, topic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

func (p *KafkaReportPublisher) Publish(ctx context.Context, r *models.Report) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.Name), r,
		pkgkafka.Header{Key: "run_id", Value: r.RunID},
		pkgkafka.Header{Key: "report", Value: r.Name},
		pkgkafka.Header{Key: "generated_at", Value: r.GeneratedAt.UTC().Format(time.RFC3339)},
	)
}

func (p *KafkaReportPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops reports. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.Report) error { return nil }
func (NopPublisher) Close() error                                  { return nil }
