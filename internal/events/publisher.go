// Package events announces persisted scoring records on an AMQP topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"wallet-score/internal/config"
	"wallet-score/internal/metrics"
)

const (
	defaultExchange   = "walletscore"
	defaultRoutingKey = "scoring.updated"
)

// ScoringUpdated is emitted after a scoring record has been persisted.
type ScoringUpdated struct {
	RecordID    string    `json:"recordId"`
	Address     string    `json:"address"`
	Chain       string    `json:"chain"`
	ChainID     uint64    `json:"chainId"`
	ScoreType   string    `json:"scoreType"`
	Score       float64   `json:"score"`
	MintedScore uint16    `json:"mintedScore"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Publisher publishes scoring events. A nil *Publisher is valid and drops events.
type Publisher struct {
	exchange   string
	routingKey string
	logger     zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	url  string
}

// NewPublisher dials the broker and declares the exchange. An empty URL returns nil, nil.
func NewPublisher(cfg config.QueueConfig, logger zerolog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	p := &Publisher{
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		url:        cfg.URL,
		logger:     logger.With().Str("component", "events").Logger(),
	}
	if p.exchange == "" {
		p.exchange = defaultExchange
	}
	if p.routingKey == "" {
		p.routingKey = defaultRoutingKey
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// PublishScoringUpdated sends the event. Failures are logged and counted, never returned,
// since the record is already persisted.
func (p *Publisher) PublishScoringUpdated(ctx context.Context, evt ScoringUpdated) {
	if p == nil {
		return
	}
	if err := p.publish(ctx, evt); err != nil {
		metrics.IncEventPublishFailures()
		p.logger.Warn().Err(err).Str("record_id", evt.RecordID).Msg("publish scoring event failed")
	}
}

func (p *Publisher) publish(ctx context.Context, evt ScoringUpdated) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}
	return p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.RecordID,
		Timestamp:    evt.CreatedAt,
		Type:         "ScoringDataUpdated",
		Body:         body,
	})
}

// Close shuts the channel and connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.conn, p.ch = nil, nil
	return errors.Join(errs...)
}
