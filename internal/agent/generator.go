package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/time/rate"

	"github.com/ignite/autolink/internal/pkg/logger"
	"github.com/ignite/autolink/internal/service/suggestion"
)

// DefaultModelID is used when no model is configured.
const DefaultModelID = "anthropic.claude-3-sonnet-20240229-v1:0"

// InvokeAPI is the subset of the Bedrock runtime client the generator uses.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockMessage is one message in the Anthropic messages format.
type BedrockMessage struct {
	Role    string                `json:"role"`
	Content []BedrockContentBlock `json:"content"`
}

// BedrockContentBlock is a text block inside a message.
type BedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// BedrockRequest is the InvokeModel body for Claude models.
type BedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []BedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

// BedrockResponse is the InvokeModel response body.
type BedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Options tunes the generator.
type Options struct {
	ModelID        string
	MaxTokens      int
	Temperature    float64
	MaxSuggestions int

	// RequestsPerSecond caps InvokeModel calls across all requests. Zero
	// disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// BedrockGenerator proposes link placements with a Claude model on AWS
// Bedrock. It implements suggestion.Generator.
type BedrockGenerator struct {
	client  InvokeAPI
	opts    Options
	limiter *rate.Limiter
}

// NewBedrockGenerator wraps a Bedrock runtime client. Build the client with
// bedrockruntime.NewFromConfig.
func NewBedrockGenerator(client InvokeAPI, opts Options) *BedrockGenerator {
	if opts.ModelID == "" {
		opts.ModelID = DefaultModelID
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 10
	}
	g := &BedrockGenerator{client: client, opts: opts}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return g
}

// Generate implements suggestion.Generator.
func (g *BedrockGenerator) Generate(ctx context.Context, req suggestion.GenerateRequest) ([]suggestion.Generated, error) {
	if len(req.Keywords) == 0 {
		return nil, nil
	}
	userMsg, err := buildUserMessage(req, g.opts.MaxSuggestions)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(BedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        g.opts.MaxTokens,
		System:           systemPrompt,
		Messages: []BedrockMessage{{
			Role:    "user",
			Content: []BedrockContentBlock{{Type: "text", Text: userMsg}},
		}},
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bedrock request: %w", err)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// The wait would outlast the deadline.
				err = fmt.Errorf("%v: %w", err, context.DeadlineExceeded)
			}
			return nil, fmt.Errorf("bedrock throttle: %w", err)
		}
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.opts.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp BedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("parse bedrock response: %w", err)
	}
	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	items, err := parseSuggestions(text)
	if err != nil {
		return nil, err
	}
	if len(items) > g.opts.MaxSuggestions {
		items = items[:g.opts.MaxSuggestions]
	}
	logger.Debug("bedrock suggestions",
		"content_id", req.ContentID,
		"items", len(items),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return items, nil
}
