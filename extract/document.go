package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	tt "github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

// TextractAPI is the subset of the Textract client used by Document.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// Document extracts text with a document text detection service (Textract).
// The service output is authoritative: LINE blocks joined by newlines in
// response order, with no post-processing.
type Document struct {
	client TextractAPI
	logger *log.Logger
}

// NewDocument creates the document service backend.
func NewDocument(client TextractAPI, logger *log.Logger) *Document {
	return &Document{client: client, logger: logger}
}

// Backend returns types.BackendDocument.
func (d *Document) Backend() types.Backend { return types.BackendDocument }

// Extract detects text in the stored object, or in the working copy when
// the input carries no object store location.
func (d *Document) Extract(ctx context.Context, in Input, timeout time.Duration) types.ExtractionResult {
	return guard(ctx, types.BackendDocument, timeout, d.logger, func(ctx context.Context) (string, error) {
		doc := &tt.Document{}
		if in.stored() {
			doc.S3Object = &tt.S3Object{Bucket: aws.String(in.Bucket), Name: aws.String(in.Key)}
		} else {
			data, err := readInput(in.Path)
			if err != nil {
				return "", err
			}
			doc.Bytes = data
		}

		out, err := d.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{Document: doc})
		if err != nil {
			return "", fmt.Errorf("detect document text: %w", err)
		}

		var lines []string
		for _, b := range out.Blocks {
			if b.BlockType == tt.BlockTypeLine && b.Text != nil {
				lines = append(lines, *b.Text)
			}
		}
		return strings.Join(lines, "\n"), nil
	})
}

var _ Extractor = (*Document)(nil)
