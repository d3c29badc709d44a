package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// Tesseract implements the Engine interface with a local Tesseract
// installation. It is free and offline, which keeps batch OCR cheap.
type Tesseract struct {
	language string
}

// NewTesseract creates a Tesseract engine. The language is a Tesseract
// traineddata name such as "eng" or "ces".
func NewTesseract(language string) (*Tesseract, error) {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{language: language}, nil
}

// Extract recognizes each named zone's crop independently. An
// unreadable zone yields the NoText sentinel rather than an error;
// only setup and image failures abort the whole call.
func (t *Tesseract) Extract(ctx context.Context, imageData []byte, contentType string, zones []zone.Zone) (map[string]string, error) {
	crops, err := cropZones(imageData, contentType, zones)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("setting tesseract language: %w", err)
	}

	results := make(map[string]string, len(crops))
	for _, crop := range crops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if crop.png == nil {
			results[crop.propertyName] = NoText
			continue
		}

		if err := client.SetImageFromBytes(crop.png); err != nil {
			return nil, fmt.Errorf("setting zone image for %q: %w", crop.propertyName, err)
		}
		text, err := client.Text()
		if err != nil {
			return nil, fmt.Errorf("recognizing zone %q: %w", crop.propertyName, err)
		}

		text = strings.TrimSpace(text)
		if text == "" {
			text = NoText
		}
		results[crop.propertyName] = text
	}
	return results, nil
}

// Close is a no-op; the gosseract client lives per Extract call.
func (t *Tesseract) Close() error {
	return nil
}
