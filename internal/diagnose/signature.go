package diagnose

import (
	"regexp"

	"github.com/mitchellh/hashstructure/v2"
)

// Normalization patterns for variable content in error messages. Order
// matters: specific shapes (UUIDs, timestamps) are replaced before general
// ones (hex runs, numbers) to avoid partial matches.
var (
	uuidPattern       = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	timestampPattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?`)
	quotedPathPattern = regexp.MustCompile(`"[^"]*/[^"]*"|'[^']*/[^']*'`)
	hexPattern        = regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b|\b[0-9a-fA-F]{8,}\b`)
	durationPattern   = regexp.MustCompile(`\b\d+(?:\.\d+)?(?:ns|µs|us|ms|s|m|h)\b`)
	numberPattern     = regexp.MustCompile(`\b\d+\b`)
)

// normalizeMessage replaces volatile fragments of an error message with
// stable placeholders so repeat deterministic failures produce the same
// signature.
func normalizeMessage(msg string) string {
	msg = uuidPattern.ReplaceAllString(msg, "<uuid>")
	msg = timestampPattern.ReplaceAllString(msg, "<timestamp>")
	msg = quotedPathPattern.ReplaceAllString(msg, "<path>")
	msg = hexPattern.ReplaceAllString(msg, "<hex>")
	msg = durationPattern.ReplaceAllString(msg, "<duration>")
	msg = numberPattern.ReplaceAllString(msg, "<n>")
	return msg
}

// signatureInput is hashed to produce a stable failure signature.
type signatureInput struct {
	Category Category
	Message  string
}

// computeSignature hashes the category plus the normalized message. Two
// failures with the same signature are the same deterministic failure for
// history-bias purposes.
func computeSignature(category Category, message string) uint64 {
	sig, err := hashstructure.Hash(signatureInput{
		Category: category,
		Message:  normalizeMessage(message),
	}, hashstructure.FormatV2, nil)
	if err != nil {
		// Hashing a plain struct of strings cannot realistically fail.
		return 0
	}
	return sig
}
