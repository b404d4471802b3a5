package transform

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/varikb/varikb/pkg/metrics"
	"github.com/varikb/varikb/pkg/natsutil"
)

const retryHeader = "X-Retry-Count"

// ConsumerOpts configures the harvest consumer.
type ConsumerOpts struct {
	Subject    string // incoming source harvests
	OutSubject string // outgoing canonical bundles
	DLQSubject string // poison messages after MaxRetries
	Queue      string // queue group for horizontal scaling
	MaxRetries int
}

// DefaultConsumerOpts are the subjects and limits used by the consume
// command.
var DefaultConsumerOpts = ConsumerOpts{
	Subject:    "varikb.harvest",
	OutSubject: "varikb.transformed",
	DLQSubject: "varikb.harvest.dlq",
	Queue:      "transformers",
	MaxRetries: 3,
}

// StartConsumer subscribes to source harvests, transforms each one, and
// publishes the resulting bundle. Failed messages are requeued with a retry
// header; once MaxRetries is exhausted they land on the DLQ subject.
func StartConsumer(nc *nats.Conn, t *Transformer, log *slog.Logger, reg *metrics.Registry, opts ConsumerOpts) (*nats.Subscription, error) {
	processed := reg.Counter(metrics.WithLabels("transform_messages_total", "status", "ok"), "Harvest messages processed")
	failed := reg.Counter(metrics.WithLabels("transform_messages_total", "status", "error"), "Harvest messages processed")
	deadLettered := reg.Counter("transform_dlq_total", "Harvest messages sent to the DLQ")
	duration := reg.Histogram("transform_duration_seconds", "Transform run duration", nil)

	return nc.QueueSubscribe(opts.Subject, opts.Queue, func(msg *nats.Msg) {
		start := time.Now()

		var harvest SourceHarvest
		if err := json.Unmarshal(msg.Data, &harvest); err != nil {
			log.Error("malformed harvest message, dead-lettering", "error", err)
			deadLettered.Inc()
			deadLetter(nc, opts.DLQSubject, msg)
			return
		}

		ctx := context.Background()
		data, err := t.Transform(ctx, harvest)
		if err != nil {
			failed.Inc()
			retries := retryCount(msg)
			if retries+1 >= opts.MaxRetries {
				log.Error("transform failed, dead-lettering", "source", harvest.Source, "retries", retries, "error", err)
				deadLettered.Inc()
				deadLetter(nc, opts.DLQSubject, msg)
				return
			}
			log.Warn("transform failed, requeueing", "source", harvest.Source, "retry", retries+1, "error", err)
			requeue(nc, opts.Subject, msg, retries+1)
			return
		}

		if err := natsutil.Publish(ctx, nc, opts.OutSubject, data); err != nil {
			log.Error("publish transformed bundle", "source", harvest.Source, "error", err)
			failed.Inc()
			return
		}
		processed.Inc()
		duration.Since(start)
		log.Info("harvest transformed",
			"source", harvest.Source,
			"evidence", len(data.StatementsEvidence),
			"assertions", len(data.StatementsAssertions),
			"duration_s", time.Since(start).Seconds(),
		)
	})
}

func retryCount(msg *nats.Msg) int {
	n, err := strconv.Atoi(msg.Header.Get(retryHeader))
	if err != nil {
		return 0
	}
	return n
}

func requeue(nc *nats.Conn, subject string, msg *nats.Msg, retries int) {
	out := nats.NewMsg(subject)
	out.Data = msg.Data
	out.Header.Set(retryHeader, strconv.Itoa(retries))
	_ = nc.PublishMsg(out)
}

func deadLetter(nc *nats.Conn, subject string, msg *nats.Msg) {
	out := nats.NewMsg(subject)
	out.Data = msg.Data
	out.Header = msg.Header
	_ = nc.PublishMsg(out)
}
