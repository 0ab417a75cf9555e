package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the worker subscription.
const (
	JobCorridorWarmup = "corridor_warmup"
	JobHealthCheck    = "health_check"
)

// Dispatch errors.
var (
	ErrMalformedMessage = errors.New("malformed job message")
	ErrUnknownJobType   = errors.New("unknown job type")
)

// JobMessage is the payload of a worker Pub/Sub message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Corridors limits a warm-up to the named corridors (optional).
	Corridors []string `json:"corridors,omitempty"`
}

// Dispatcher runs jobs described by raw message payloads.
type Dispatcher struct {
	warmup *WarmupJob
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for the warm-up job.
func NewDispatcher(warmup *WarmupJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{warmup: warmup, logger: logger}
}

// Dispatch parses data and runs the job it names.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch msg.JobType {
	case JobCorridorWarmup:
		return d.handleCorridorWarmup(ctx, msg)
	case JobHealthCheck:
		return d.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}

func (d *Dispatcher) handleCorridorWarmup(ctx context.Context, msg JobMessage) error {
	corridors := d.warmup.Config().Select(msg.Corridors)
	if len(corridors) == 0 {
		d.logger.Warn().
			Strs("corridors", msg.Corridors).
			Msg("no matching corridors, nothing to warm")
		return nil
	}

	result := d.warmup.RunCorridors(ctx, corridors)

	// Consider it successful if at least half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many warm-up failures: %d/%d", result.Failed, result.TotalCorridors)
	}
	return nil
}

func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	if err := d.warmup.HealthCheck(ctx); err != nil {
		return err
	}

	d.logger.Debug().Msg("health check passed")
	return nil
}

// PubSubHandler receives worker jobs from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Warm-ups are long; keep few outstanding and extend leases.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if Acknowledge(h.handleMessage(ctx, msg)) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) error {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.dispatcher.Dispatch(ctx, msg.Data)
	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		return err
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}

// Acknowledge reports whether a message that produced err should be acked.
// Malformed and unknown messages are acked to prevent redelivery.
func Acknowledge(err error) bool {
	return err == nil || errors.Is(err, ErrMalformedMessage) || errors.Is(err, ErrUnknownJobType)
}
