package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// GeminiClient is the Google Gemini LLM client.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

// Name returns the provider name.
func (c *GeminiClient) Name() string {
	return "gemini"
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Complete sends a completion request. The last message must come from the user.
func (c *GeminiClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Role != RoleUser {
		return nil, errors.New("gemini completion requires a trailing user message")
	}

	modelName := defaultString(req.Model, defaultGeminiModel)
	model := c.client.GenerativeModel(modelName)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	model.SetMaxOutputTokens(int32(defaultInt(req.MaxTokens, 1024)))
	model.SetTemperature(float32(req.Temperature))
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	history := make([]*genai.Content, 0, len(req.Messages)-1)
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	session := model.StartChat()
	session.History = history

	last := req.Messages[len(req.Messages)-1]
	resp, err := session.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return nil, classifyGemini(err)
	}

	var (
		content    strings.Builder
		stopReason string
	)
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				content.WriteString(string(txt))
			}
		}
		stopReason = resp.Candidates[0].FinishReason.String()
	}

	out := &CompletionResponse{
		Content:    content.String(),
		Model:      modelName,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if resp != nil && resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
