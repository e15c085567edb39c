// Package awsconf loads the shared AWS configuration used by every AWS-backed
// component (object store, extraction services, metadata table, queues).
package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Options narrows the default credential chain.
type Options struct {
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Profile selects a shared-config profile (optional).
	Profile string
}

// Load resolves an aws.Config using the default credential chain
// (env vars, shared config, IAM role).
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
