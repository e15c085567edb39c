package intake

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/justapithecus/glean/awsconf"
	"github.com/justapithecus/glean/log"
)

// SQS long-poll defaults.
const (
	DefaultWaitTime          = 20 * time.Second
	DefaultMaxMessages       = 10
	DefaultVisibilityTimeout = 5 * time.Minute
)

// Receive failure backoff bounds. Variables for testing.
var (
	minReceiveBackoff = time.Second
	maxReceiveBackoff = 30 * time.Second
)

// SQSAPI is the subset of the SQS client used by SQSSource.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
}

// SQSConfig configures the SQS source.
type SQSConfig struct {
	// QueueURL is the queue to consume (required).
	QueueURL string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Concurrency is the number of parallel handlers (default 4).
	Concurrency int
	// WaitTime is the long-poll wait (default 20s, max 20s).
	WaitTime time.Duration
	// MaxMessages is the receive batch size (default 10, max 10).
	MaxMessages int
	// VisibilityTimeout hides received messages while they are processed
	// (default 5m).
	VisibilityTimeout time.Duration
}

func (c SQSConfig) withDefaults() SQSConfig {
	if c.WaitTime <= 0 || c.WaitTime > DefaultWaitTime {
		c.WaitTime = DefaultWaitTime
	}
	if c.MaxMessages <= 0 || c.MaxMessages > DefaultMaxMessages {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// SQSSource long-polls an SQS queue.
type SQSSource struct {
	config SQSConfig
	client SQSAPI
	logger *log.Logger
}

// NewSQS creates an SQS source using the default credential chain.
func NewSQS(ctx context.Context, cfg SQSConfig, logger *log.Logger) (*SQSSource, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("sqs intake requires a queue URL")
	}
	awsCfg, err := awsconf.Load(ctx, awsconf.Options{Region: cfg.Region})
	if err != nil {
		return nil, err
	}
	return NewSQSWithClient(awssqs.NewFromConfig(awsCfg), cfg, logger)
}

// NewSQSWithClient creates an SQS source over client.
func NewSQSWithClient(client SQSAPI, cfg SQSConfig, logger *log.Logger) (*SQSSource, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("sqs intake requires a queue URL")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &SQSSource{config: cfg.withDefaults(), client: client, logger: logger}, nil
}

// Run receives until ctx is canceled, then waits for in-flight handlers.
// Handlers and settlement calls are not canceled by ctx; each handler gets
// a deadline short of the visibility timeout.
func (s *SQSSource) Run(ctx context.Context, h Handler) error {
	p := newPool(s.config.Concurrency)
	defer p.Wait()

	var backoff time.Duration
	for ctx.Err() == nil {
		out, err := s.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(s.config.QueueURL),
			MaxNumberOfMessages:         int32(s.config.MaxMessages),
			WaitTimeSeconds:             int32(s.config.WaitTime / time.Second),
			VisibilityTimeout:           int32(s.config.VisibilityTimeout / time.Second),
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			backoff = nextBackoff(backoff, minReceiveBackoff, maxReceiveBackoff)
			s.logger.Warn("sqs receive failed", map[string]any{
				"error":      err.Error(),
				"backoff_ms": backoff.Milliseconds(),
			})
			if !sleep(ctx, backoff) {
				break
			}
			continue
		}
		backoff = 0

		for _, m := range out.Messages {
			msg := toMessage(m)
			receipt := aws.ToString(m.ReceiptHandle)
			if !p.Go(ctx, func() { s.handle(ctx, h, msg, receipt) }) {
				// Never started: it becomes visible again after the
				// visibility timeout.
				break
			}
		}
	}
	return nil
}

func (s *SQSSource) handle(ctx context.Context, h Handler, msg Message, receipt string) {
	sctx := context.WithoutCancel(ctx)
	hctx, cancel := context.WithTimeout(sctx, jobDeadline(s.config.VisibilityTimeout))
	err := h(hctx, msg)
	cancel()

	fields := map[string]any{"message_id": msg.ID, "attempt": msg.Attempt}
	switch Settle(err) {
	case SettleAck:
		if err != nil {
			fields["error"] = err.Error()
			s.logger.Error("dropping message after permanent failure", fields)
		}
		if _, derr := s.client.DeleteMessage(sctx, &awssqs.DeleteMessageInput{
			QueueUrl:      aws.String(s.config.QueueURL),
			ReceiptHandle: aws.String(receipt),
		}); derr != nil {
			fields["error"] = derr.Error()
			s.logger.Warn("sqs delete failed", fields)
		}
	case SettleRetry:
		delay := RedeliveryDelay(err, s.config.VisibilityTimeout)
		fields["error"] = err.Error()
		fields["delay_s"] = int(delay / time.Second)
		s.logger.Warn("releasing message for redelivery", fields)
		if _, verr := s.client.ChangeMessageVisibility(sctx, &awssqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(s.config.QueueURL),
			ReceiptHandle:     aws.String(receipt),
			VisibilityTimeout: int32(delay / time.Second),
		}); verr != nil {
			fields["error"] = verr.Error()
			s.logger.Warn("sqs visibility reset failed", fields)
		}
	}
}

func toMessage(m sqstypes.Message) Message {
	msg := Message{
		ID:         aws.ToString(m.MessageId),
		Body:       aws.ToString(m.Body),
		ReceivedAt: time.Now(),
	}
	if v, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			msg.Attempt = n
		}
	}
	return msg
}

var _ Source = (*SQSSource)(nil)
