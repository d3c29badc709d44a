package ocr

import (
	"context"

	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// NoText is the sentinel value recorded for a zone the engine could
// not read anything out of.
const NoText = "NaN"

// Engine extracts text from the rectangular zones of a page image.
// Extract returns one entry per named zone, keyed by property name;
// zones with an empty property name are skipped. Implementations
// return an error and no partial map when extraction fails, so callers
// can leave page values untouched.
type Engine interface {
	Extract(ctx context.Context, image []byte, contentType string, zones []zone.Zone) (map[string]string, error)

	// Close releases engine resources.
	Close() error
}
