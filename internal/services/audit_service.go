package services

import (
	"encoding/json"

	"github.com/saeid-a/TeleClinicBack/internal/telehealth"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Publisher is the outbound side of the audit pipeline.
type Publisher interface {
	Publish(exchange string, body []byte) error
}

// AMQPPublisher publishes audit events to a fanout exchange.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(amqpURL string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) Publish(exchange string, body []byte) error {
	err := p.channel.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil)
	if err != nil {
		return err
	}
	return p.channel.Publish(exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// AuditService records compliance events fire-and-forget: publish failures
// are logged, never propagated into session handling. With no publisher
// configured events go to the structured log only.
type AuditService struct {
	publisher Publisher
	exchange  string
	log       *logrus.Logger
}

func NewAuditService(publisher Publisher, exchange string, log *logrus.Logger) *AuditService {
	return &AuditService{
		publisher: publisher,
		exchange:  exchange,
		log:       log,
	}
}

func (s *AuditService) Record(event telehealth.AuditEvent) {
	entry := s.log.WithFields(logrus.Fields{
		"actor":         event.Actor,
		"action":        event.Action,
		"resource_id":   event.ResourceID,
		"resource_type": event.ResourceType,
	})
	entry.Info("audit event")

	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		entry.WithError(err).Warn("failed to encode audit event")
		return
	}
	if err := s.publisher.Publish(s.exchange, body); err != nil {
		entry.WithError(err).Warn("failed to publish audit event")
	}
}
