package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	kafkago "github.com/segmentio/kafka-go"

	"optionsflow/internal/adapters/kafka"
	"optionsflow/internal/domain/flow"
	"optionsflow/internal/events"
	"optionsflow/internal/metrics"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const sendTimeout = 30 * time.Second

// AlertSender delivers a formatted message to one chat
type AlertSender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// FlowAlertConsumer forwards significant-flow alerts to Telegram chats
type FlowAlertConsumer struct {
	consumer *kafka.Consumer
	sender   AlertSender
	chatIDs  []int64
	log      *logger.Logger
}

// NewFlowAlertConsumer creates a new flow alert consumer
func NewFlowAlertConsumer(consumer *kafka.Consumer, sender AlertSender, chatIDs []int64, log *logger.Logger) *FlowAlertConsumer {
	return &FlowAlertConsumer{
		consumer: consumer,
		sender:   sender,
		chatIDs:  chatIDs,
		log:      log.With("component", "flow_alert_consumer"),
	}
}

// Start consumes alerts until ctx is cancelled
func (c *FlowAlertConsumer) Start(ctx context.Context) error {
	c.log.Infow("Starting flow alert consumer", "chats", len(c.chatIDs))

	defer func() {
		if err := c.consumer.Close(); err != nil {
			c.log.Errorw("Failed to close consumer", "error", err)
		}
	}()

	return c.consumer.Consume(ctx, c.HandleMessage)
}

// HandleMessage decodes one alert and sends it to every configured chat.
// A failed chat does not stop delivery to the others.
func (c *FlowAlertConsumer) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	var event events.FlowAlertEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "unmarshal flow alert")
	}
	if event.Type != events.EventTypeFlowAlert {
		c.log.Debugw("Ignoring unknown event type", "event_type", event.Type)
		return nil
	}

	text := FormatFlowAlert(event)

	// delivery finishes even when shutdown starts mid-message
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	var errs errors.MultiError
	for _, chatID := range c.chatIDs {
		err := c.sender.Send(sendCtx, chatID, text)
		metrics.RecordAlertDelivered(err)
		if err != nil {
			errs.Add(errors.Wrapf(err, "chat %d", chatID))
		}
	}

	c.log.Debugw("Flow alert delivered",
		"ticker", event.Ticker,
		"chats", len(c.chatIDs),
		"failed", len(errs.Errors),
	)

	return errs.ToError()
}

// FormatFlowAlert renders an alert as Telegram HTML
func FormatFlowAlert(e events.FlowAlertEvent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🐋 <b>%s</b> unusual options flow (%s)\n", e.Ticker, e.Sentiment)
	fmt.Fprintf(&b, "Delta flow: %s\n", signedUSD(e.DeltaFlow))
	fmt.Fprintf(&b, "Gamma exposure: %s\n", humanize.CommafWithDigits(e.GammaExposure, 0))
	fmt.Fprintf(&b, "Trades: %d | Calls %s / Puts %s",
		e.EventCount, usd(e.CallPremium), usd(e.PutPremium))
	if e.CallPremium > 0 {
		fmt.Fprintf(&b, " | P/C %.2f", e.PutCallRatio)
	}
	b.WriteString("\n")

	if tags := formatTagCounts(e.TagCounts); tags != "" {
		fmt.Fprintf(&b, "Tags: %s\n", tags)
	}

	if len(e.TopTrades) > 0 {
		b.WriteString("Top trades:\n")
		for _, t := range e.TopTrades {
			fmt.Fprintf(&b, "• %s", strings.ToUpper(t.OptionType))
			if t.Strike > 0 {
				fmt.Fprintf(&b, " %s", humanize.FtoaWithDigits(t.Strike, 2))
			}
			fmt.Fprintf(&b, " exp %s %s", t.Expiry.Format("2006-01-02"), usd(t.Premium))
			if t.HasSweep {
				b.WriteString(" sweep")
			}
			if len(t.Tags) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(t.Tags, ", "))
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "<i>Scanned %s</i>", e.ScannedAt.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

// formatTagCounts lists tags in canonical order
func formatTagCounts(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, tag := range flow.AllTags {
		if n := counts[string(tag)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s ×%d", tag, n))
		}
	}
	return strings.Join(parts, ", ")
}

func usd(v float64) string {
	return "$" + humanize.CommafWithDigits(math.Round(v), 0)
}

func signedUSD(v float64) string {
	switch {
	case v > 0:
		return "+" + usd(v)
	case v < 0:
		return "-" + usd(-v)
	default:
		return usd(0)
	}
}
