package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

type Producer struct {
	producer       sarama.SyncProducer
	heartbeatTopic string
	eventTopic     string
}

func NewProducer(brokers []string, heartbeatTopic, eventTopic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return newProducer(producer, heartbeatTopic, eventTopic), nil
}

func newProducer(p sarama.SyncProducer, heartbeatTopic, eventTopic string) *Producer {
	return &Producer{producer: p, heartbeatTopic: heartbeatTopic, eventTopic: eventTopic}
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *Producer) send(topic, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

// SendHeartbeat publishes a monitor heartbeat keyed by camera name.
func (p *Producer) SendHeartbeat(msg models.Heartbeat) error {
	return p.send(p.heartbeatTopic, msg.Camera, msg)
}

// SendSequence publishes a closed sequence keyed by camera name.
func (p *Producer) SendSequence(msg models.SequenceMessage) error {
	return p.send(p.eventTopic, msg.Camera, msg)
}

// PublishSequence sends an already encoded sequence message, as stored
// in the outbox.
func (p *Producer) PublishSequence(camera string, payload []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.eventTopic,
		Key:   sarama.StringEncoder(camera),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

// SequenceClosed publishes the sequence summary, logging failures.
func (p *Producer) SequenceClosed(_ context.Context, camera string, events []models.Event) {
	if len(events) == 0 {
		return
	}
	if err := p.SendSequence(models.NewSequenceMessage(camera, events, time.Now())); err != nil {
		log.Error().Err(err).Str("camera", camera).Msg("Failed to publish sequence")
	}
}
