// Package jobref decodes inbound job messages into artifact references.
//
// A job message is a URL-shaped string. After a marker substring it carries
// a path of the form:
//
//	<bucket>/<key-prefix>/<domain>/<epoch>-<rest>
//
// Deployments differ in which segments are present, so the expected shape
// is described by a Grammar rather than hardcoded. Only the identity fields
// (bucket, key) can fail a parse; domain and timestamp degrade to ""/0.
package jobref

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/justapithecus/glean/types"
)

// DefaultMarker precedes the bucket in S3 path-style locations.
const DefaultMarker = "amazonaws.com/"

// DomainMode says whether the path carries a domain segment.
type DomainMode string

const (
	// DomainPresent expects bucket/prefix/domain/epoch-rest (screenshot layout).
	DomainPresent DomainMode = "present"
	// DomainAbsent expects bucket/prefix/epoch-rest (OCR-only layout).
	DomainAbsent DomainMode = "absent"
)

// TimestampFormat says how the capture epoch is encoded in its segment.
type TimestampFormat string

const (
	// TimestampLeadingDigits takes the run of digits that starts the segment.
	TimestampLeadingDigits TimestampFormat = "leading_digits"
	// TimestampFullEpoch parses everything before the first "-" as an epoch,
	// allowing a fractional part ("1690000000.25-...").
	TimestampFullEpoch TimestampFormat = "full_epoch"
	// TimestampTrailingDigits takes the run of digits that ends the segment,
	// ignoring a file extension ("example_com-1690000000.png").
	TimestampTrailingDigits TimestampFormat = "trailing_digits"
)

// ErrParse is matched by every ParseError via errors.Is.
var ErrParse = errors.New("job reference parse error")

// ParseError reports a job message whose bucket or key cannot be isolated.
type ParseError struct {
	// Message is the raw inbound message, truncated for logging.
	Message string
	// Reason says what was missing.
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse job reference %q: %s", e.Message, e.Reason)
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Grammar describes the expected shape of a job message.
// The zero value is the analyze deployment: S3 marker, domain present,
// leading-digit timestamps.
type Grammar struct {
	Marker    string          `yaml:"marker"`
	Domain    DomainMode      `yaml:"domain"`
	Timestamp TimestampFormat `yaml:"timestamp"`
}

// withDefaults fills unset fields.
func (g Grammar) withDefaults() Grammar {
	if g.Marker == "" {
		g.Marker = DefaultMarker
	}
	if g.Domain == "" {
		g.Domain = DomainPresent
	}
	if g.Timestamp == "" {
		g.Timestamp = TimestampLeadingDigits
	}
	return g
}

// Validate rejects unknown modes.
func (g Grammar) Validate() error {
	g = g.withDefaults()
	switch g.Domain {
	case DomainPresent, DomainAbsent:
	default:
		return fmt.Errorf("invalid grammar domain mode %q (must be present or absent)", g.Domain)
	}
	switch g.Timestamp {
	case TimestampLeadingDigits, TimestampFullEpoch, TimestampTrailingDigits:
	default:
		return fmt.Errorf("invalid grammar timestamp format %q (must be leading_digits, full_epoch, or trailing_digits)", g.Timestamp)
	}
	return nil
}

// Parser decodes job messages according to a Grammar. It holds no state
// and is safe for concurrent use.
type Parser struct {
	grammar Grammar
}

// NewParser creates a parser for g.
func NewParser(g Grammar) (*Parser, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Parser{grammar: g.withDefaults()}, nil
}

// MustParser is NewParser for grammars known to be valid.
func MustParser(g Grammar) *Parser {
	p, err := NewParser(g)
	if err != nil {
		panic(err)
	}
	return p
}

// Grammar returns the effective grammar.
func (p *Parser) Grammar() Grammar {
	return p.grammar
}

// Parse decodes raw into an ArtifactReference.
// It fails with a *ParseError only when the marker is absent or the bucket
// and key cannot both be isolated.
func (p *Parser) Parse(raw string) (types.ArtifactReference, error) {
	msg := strings.TrimSpace(raw)

	idx := strings.Index(msg, p.grammar.Marker)
	if idx < 0 {
		return types.ArtifactReference{}, newParseError(raw, fmt.Sprintf("marker %q not found", p.grammar.Marker))
	}
	path := stripQuery(msg[idx+len(p.grammar.Marker):])

	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return types.ArtifactReference{}, newParseError(raw, "fewer than two path segments after marker")
	}
	for i, s := range segments {
		segments[i] = types.UnescapeSegment(s)
	}

	ref := types.ArtifactReference{
		Bucket: segments[0],
		Key:    strings.Join(segments[1:], "/"),
	}
	if err := ref.Validate(); err != nil {
		return types.ArtifactReference{}, newParseError(raw, err.Error())
	}

	tsIndex := 2
	if p.grammar.Domain == DomainPresent {
		tsIndex = 3
		if len(segments) > 2 {
			ref.Domain = segments[2]
		}
	}
	if len(segments) > tsIndex {
		// The timestamp segment is everything after the domain, like the
		// original producer's split with a limit.
		ref.CapturedAt = parseEpoch(strings.Join(segments[tsIndex:], "/"), p.grammar.Timestamp)
	}

	return ref, nil
}

func newParseError(raw, reason string) *ParseError {
	const maxLen = 256
	if len(raw) > maxLen {
		raw = raw[:maxLen] + "..."
	}
	return &ParseError{Message: raw, Reason: reason}
}

// stripQuery drops a query string or fragment from a location path.
// Escaped "%3F" and "%23" inside segments are not separators.
func stripQuery(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		return path[:i]
	}
	return path
}

// parseEpoch extracts a capture epoch from segment. Unparseable input is 0.
func parseEpoch(segment string, format TimestampFormat) int64 {
	switch format {
	case TimestampFullEpoch:
		head, _, _ := strings.Cut(segment, "-")
		f, err := strconv.ParseFloat(head, 64)
		if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) || f > math.MaxInt64 {
			return 0
		}
		return int64(f)
	case TimestampTrailingDigits:
		base := segment
		if i := strings.LastIndex(base, "/"); i >= 0 {
			base = base[i+1:]
		}
		if i := strings.LastIndex(base, "."); i > 0 {
			base = base[:i]
		}
		end := len(base)
		start := end
		for start > 0 && isDigit(base[start-1]) {
			start--
		}
		return atoi(base[start:end])
	default:
		end := 0
		for end < len(segment) && isDigit(segment[end]) {
			end++
		}
		return atoi(segment[:end])
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func atoi(digits string) int64 {
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
