package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// zoneCrop is one zone's region of the page, rendered as a standalone
// PNG ready for recognition.
type zoneCrop struct {
	propertyName string
	png          []byte
}

// cropZones cuts each named zone's rectangle out of the page image and
// preprocesses it for recognition. Zones with an empty property name
// are skipped; zone rectangles are clamped to the image bounds.
func cropZones(imageData []byte, contentType string, zones []zone.Zone) ([]zoneCrop, error) {
	pngData, err := normalizePageImage(imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("normalizing page image: %w", err)
	}

	page, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decoding page image: %w", err)
	}
	bounds := page.Bounds()

	crops := make([]zoneCrop, 0, len(zones))
	for _, z := range zones {
		if z.PropertyName == "" {
			continue
		}

		rect := image.Rect(int(z.X), int(z.Y), int(z.X+z.Width), int(z.Y+z.Height))
		rect = rect.Intersect(bounds)
		if rect.Empty() {
			crops = append(crops, zoneCrop{propertyName: z.PropertyName})
			continue
		}

		cropped := imaging.Crop(page, rect)
		prepared := prepareForRecognition(cropped)

		var buf bytes.Buffer
		if err := png.Encode(&buf, prepared); err != nil {
			return nil, fmt.Errorf("encoding zone %d crop: %w", z.ID, err)
		}
		crops = append(crops, zoneCrop{propertyName: z.PropertyName, png: buf.Bytes()})
	}
	return crops, nil
}

// prepareForRecognition boosts contrast on a cropped zone so printed
// text reads more reliably.
func prepareForRecognition(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)
	out = imaging.Sharpen(out, 1.0)
	return out
}
