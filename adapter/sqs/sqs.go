// Package sqs implements an Amazon SQS adapter.
//
// Sends each location as one message to a queue. The SDK's retryer
// handles transient failures.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/justapithecus/glean/adapter"
	"github.com/justapithecus/glean/awsconf"
)

// DefaultTimeout is the default per-send timeout.
const DefaultTimeout = 10 * time.Second

// API is the subset of the SQS client used by Adapter.
type API interface {
	SendMessage(ctx context.Context, in *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

// Config configures the SQS adapter.
type Config struct {
	// QueueURL is the destination queue URL (required).
	QueueURL string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Timeout is the per-send timeout (default 10s).
	Timeout time.Duration
}

// Adapter sends locations to an SQS queue.
type Adapter struct {
	config Config
	client API
}

// New creates an SQS adapter using the default credential chain.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("sqs adapter requires a queue URL")
	}
	awsCfg, err := awsconf.Load(ctx, awsconf.Options{Region: cfg.Region})
	if err != nil {
		return nil, err
	}
	return NewWithClient(awssqs.NewFromConfig(awsCfg), cfg)
}

// NewWithClient creates an SQS adapter over client.
func NewWithClient(client API, cfg Config) (*Adapter, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("sqs adapter requires a queue URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: client}, nil
}

// Send enqueues body.
func (a *Adapter) Send(ctx context.Context, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	_, err := a.client.SendMessage(sendCtx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(a.config.QueueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("sqs: send message: %w", err)
	}
	return nil
}

// Close is a no-op; the client holds no resources.
func (a *Adapter) Close() error { return nil }

var _ adapter.Adapter = (*Adapter)(nil)
