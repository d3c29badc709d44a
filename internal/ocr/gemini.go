package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// zoneTranscribePrompt asks for a verbatim transcription of one
// cropped zone. The crops are small, so the model is told not to
// interpret or reformat anything.
const zoneTranscribePrompt = `Transcribe the text in this image exactly as printed.
Return only the transcribed text with no commentary, no markdown and no quotes.
If the image contains no legible text, return an empty response.`

// Gemini implements the Engine interface using Google Gemini for
// zones where Tesseract struggles (handwriting, low-quality scans).
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini engine.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Extract sends each named zone's crop to the model for transcription.
func (g *Gemini) Extract(ctx context.Context, imageData []byte, contentType string, zones []zone.Zone) (map[string]string, error) {
	crops, err := cropZones(imageData, contentType, zones)
	if err != nil {
		return nil, err
	}

	results := make(map[string]string, len(crops))
	for _, crop := range crops {
		if crop.png == nil {
			results[crop.propertyName] = NoText
			continue
		}

		text, err := g.transcribe(ctx, crop.png)
		if err != nil {
			return nil, fmt.Errorf("transcribing zone %q: %w", crop.propertyName, err)
		}
		if text == "" {
			text = NoText
		}
		results[crop.propertyName] = text
	}
	return results, nil
}

func (g *Gemini) transcribe(ctx context.Context, cropPNG []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData("png", cropPNG),
		genai.Text(zoneTranscribePrompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	// Strip markdown fences some models wrap plain text in anyway.
	text := strings.TrimSpace(sb.String())
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text), nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
