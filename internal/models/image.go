package models

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini image replies embed the picture as inline data without a reliable
// mime type, so the decoder falls back to PNG.
const defaultImageMIME = "image/png"

// avatarPromptLimit caps the prompt passed to the image model. Profile
// appearance text is user-influenced and can run long.
const avatarPromptLimit = 600

// AvatarGenerator renders agent portraits through a Gemini image model and
// hands them back as base64 data URLs so they can be stored inline on the
// profile document.
type AvatarGenerator struct {
	client      *genai.Client
	model       string
	aspectRatio string
}

// NewAvatarGenerator builds the genai-backed generator. Portraits default
// to a square ratio unless the configuration asks for another supported one.
func NewAvatarGenerator(ctx context.Context, apiKey, model, aspectRatio string) (*AvatarGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("image model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &AvatarGenerator{
		client:      client,
		model:       model,
		aspectRatio: avatarAspectRatio(aspectRatio),
	}, nil
}

// Generate renders one portrait and returns it as a data URL.
func (g *AvatarGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("avatar generator not configured")
	}
	prompt = clampPrompt(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: g.aspectRatio,
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("generate avatar: %w", err)
	}
	return avatarDataURL(resp)
}

// avatarDataURL pulls the first inline image out of a generation response.
func avatarDataURL(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty avatar response")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mimeType := strings.TrimSpace(part.InlineData.MIMEType)
		if mimeType == "" {
			mimeType = defaultImageMIME
		}
		encoded := base64.StdEncoding.EncodeToString(part.InlineData.Data)
		return fmt.Sprintf("data:%s;base64,%s", mimeType, encoded), nil
	}
	return "", fmt.Errorf("avatar data missing in response")
}

func clampPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	runes := []rune(prompt)
	if len(runes) > avatarPromptLimit {
		return string(runes[:avatarPromptLimit])
	}
	return prompt
}

func avatarAspectRatio(value string) string {
	switch strings.TrimSpace(value) {
	case "3:4", "4:3", "9:16", "16:9":
		return strings.TrimSpace(value)
	default:
		return "1:1"
	}
}
