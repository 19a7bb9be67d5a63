package app

import (
	"reflect"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: nil},
		{raw: "broker1:9092", want: []string{"broker1:9092"}},
		{raw: "broker1:9092, broker2:9092 ,,broker3:9092", want: []string{"broker1:9092", "broker2:9092", "broker3:9092"}},
		{raw: " , ", want: nil},
	}

	for _, tt := range tests {
		if got := parseBrokers(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseBrokers(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(nil, "test", log.WithField("test", "kafka"))
	if err != nil {
		t.Errorf("expected no error for empty brokers, got %v", err)
	}
	if producer != nil {
		t.Error("expected nil producer for empty brokers")
	}
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	producer, err := initKafkaProducer([]string{"127.0.0.1:1"}, "test", log.WithField("test", "kafka"))
	if err == nil {
		t.Error("expected error for unreachable brokers")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestOutboxPublishers_WithoutProducer(t *testing.T) {
	publisher, dlq := outboxPublishers(nil, DefaultConfig())
	if publisher != nil || dlq != nil {
		t.Fatal("publishers must be nil without producer")
	}
}

func TestCloseKafka_NilProducer(_ *testing.T) {
	closeKafka(nil, log.WithField("test", "kafka"))
}
