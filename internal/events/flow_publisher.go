package events

import (
	"context"
	"time"

	"optionsflow/internal/adapters/kafka"
	"optionsflow/internal/domain/flow"
	"optionsflow/internal/metrics"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

// EventProducer writes a JSON event to a topic
type EventProducer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// FlowAlertPublisher publishes significant tickers to flow.alerts
type FlowAlertPublisher struct {
	producer EventProducer
	log      *logger.Logger
}

// NewFlowAlertPublisher creates a new flow alert publisher
func NewFlowAlertPublisher(producer EventProducer, log *logger.Logger) *FlowAlertPublisher {
	return &FlowAlertPublisher{
		producer: producer,
		log:      log.With("component", "flow_alert_publisher"),
	}
}

// PublishFlowAlert publishes one alert keyed by ticker
func (p *FlowAlertPublisher) PublishFlowAlert(ctx context.Context, report flow.TickerReport, scannedAt time.Time) error {
	event := NewFlowAlertEvent(report, scannedAt)

	err := p.producer.Publish(ctx, kafka.TopicFlowAlerts, event.Ticker, event)
	metrics.RecordAlertPublished(err)
	if err != nil {
		return errors.Wrapf(err, "publish flow alert for %s", event.Ticker)
	}

	p.log.Debugw("Flow alert published", "ticker", event.Ticker, "id", event.ID)
	return nil
}
