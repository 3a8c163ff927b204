package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexAIClient wraps the Vertex AI Gemini API
type VertexAIClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewVertexAIClient creates a client tuned for short email drafts.
func NewVertexAIClient(ctx context.Context, projectID, location, modelName string) (*VertexAIClient, error) {
	if projectID == "" {
		return nil, fmt.Errorf("google cloud project not set")
	}

	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetTopK(1)
	model.SetTopP(1)
	model.SetMaxOutputTokens(300)
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockMediumAndAbove},
	}

	return &VertexAIClient{
		client: client,
		model:  model,
	}, nil
}

// GenerateContent sends a prompt to the model and returns the response text.
func (v *VertexAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String(), nil
}

func (v *VertexAIClient) Close() error {
	return v.client.Close()
}
