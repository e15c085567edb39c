package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rt "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

// RekognitionAPI is the subset of the Rekognition client used by Vision.
type RekognitionAPI interface {
	DetectText(ctx context.Context, in *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Vision extracts text with a general-purpose vision service (Rekognition).
// LINE detections are joined with single spaces in detection order.
type Vision struct {
	client RekognitionAPI
	logger *log.Logger
}

// NewVision creates the vision service backend.
func NewVision(client RekognitionAPI, logger *log.Logger) *Vision {
	return &Vision{client: client, logger: logger}
}

// Backend returns types.BackendVision.
func (v *Vision) Backend() types.Backend { return types.BackendVision }

// Extract detects text in the stored object, or in the working copy when
// the input carries no object store location.
func (v *Vision) Extract(ctx context.Context, in Input, timeout time.Duration) types.ExtractionResult {
	return guard(ctx, types.BackendVision, timeout, v.logger, func(ctx context.Context) (string, error) {
		img := &rt.Image{}
		if in.stored() {
			img.S3Object = &rt.S3Object{Bucket: aws.String(in.Bucket), Name: aws.String(in.Key)}
		} else {
			data, err := readInput(in.Path)
			if err != nil {
				return "", err
			}
			img.Bytes = data
		}

		out, err := v.client.DetectText(ctx, &rekognition.DetectTextInput{Image: img})
		if err != nil {
			return "", fmt.Errorf("detect text: %w", err)
		}

		var fragments []string
		for _, d := range out.TextDetections {
			if d.Type == rt.TextTypesLine && d.DetectedText != nil {
				fragments = append(fragments, *d.DetectedText)
			}
		}
		return JoinFragments(fragments), nil
	})
}

var _ Extractor = (*Vision)(nil)
