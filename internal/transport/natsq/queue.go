// Package natsq carries embed jobs over NATS between the mutation path and
// the embedding worker.
package natsq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
)

const subscribeBuffer = 256

// Queue publishes and consumes embed jobs on a single subject. Consumers
// share a queue group, so each job is delivered to one worker. Delivery is
// at-least-once from the producer's perspective; the generator's idempotence
// makes duplicates harmless.
type Queue struct {
	nc         *nats.Conn
	subject    string
	queueGroup string
	logger     *zap.Logger
}

// Connect dials NATS and returns a queue bound to subject and queueGroup.
func Connect(url, subject, queueGroup string, logger *zap.Logger) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{nc: nc, subject: subject, queueGroup: queueGroup, logger: logger}, nil
}

// PublishEmbedJob enqueues one embed job.
func (q *Queue) PublishEmbedJob(_ context.Context, job domain.EmbedJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal embed job: %w", err)
	}
	if err := q.nc.Publish(q.subject, data); err != nil {
		return fmt.Errorf("publish embed job: %w", err)
	}
	return nil
}

// SubscribeEmbedJobs joins the queue group and streams decoded jobs until
// ctx is cancelled. Malformed payloads are logged and dropped; they would
// fail identically on every redelivery.
//
// The channel is never closed: Unsubscribe does not wait for an in-flight
// handler, so closing would race a concurrent send. Consumers stop on
// ctx.Done instead.
func (q *Queue) SubscribeEmbedJobs(ctx context.Context) (<-chan domain.EmbedJob, error) {
	ch := make(chan domain.EmbedJob, subscribeBuffer)

	sub, err := q.nc.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		q.deliver(ctx, ch, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", q.subject, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			q.logger.Warn("Unsubscribe failed", zap.Error(err))
		}
	}()

	return ch, nil
}

// deliver decodes one payload and hands it to the consumer, giving up when
// ctx is cancelled mid-send.
func (q *Queue) deliver(ctx context.Context, ch chan domain.EmbedJob, data []byte) {
	job, ok := decodeJob(data)
	if !ok {
		q.logger.Warn("Dropping malformed embed job", zap.ByteString("payload", data))
		return
	}
	select {
	case ch <- job:
	case <-ctx.Done():
	}
}

// IsConnected reports broker connectivity for health checks.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}

// Close drains in-flight messages and closes the connection.
func (q *Queue) Close() {
	if q.nc == nil {
		return
	}
	if err := q.nc.Drain(); err != nil {
		q.logger.Warn("NATS drain failed", zap.Error(err))
		q.nc.Close()
	}
}

func decodeJob(data []byte) (domain.EmbedJob, bool) {
	var job domain.EmbedJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.EmbedJob{}, false
	}
	if job.EntityType == "" || job.EntityID == "" {
		return domain.EmbedJob{}, false
	}
	return job, true
}
