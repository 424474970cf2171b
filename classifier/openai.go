package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"mailwatch/config"
)

const systemPrompt = `You are an email secretary. Decide whether the email needs the user's attention.
Respond only with a JSON object containing:
- alerted: boolean (true if the email needs attention now)
- reason: string (one short sentence explaining the decision)`

// maxBodySize bounds the body sent to the model.
const maxBodySize = 8000

// OpenAIAnalyzer asks an OpenAI-compatible chat model (or an Azure
// deployment) whether an email needs attention.
type OpenAIAnalyzer struct {
	client    *openai.Client
	modelName string
	logger    *logrus.Entry
}

// NewOpenAIAnalyzer returns nil when no API key is configured.
func NewOpenAIAnalyzer(cfg config.OpenAIConfig, logger *logrus.Entry) *OpenAIAnalyzer {
	if !cfg.Enabled() {
		return nil
	}

	var clientCfg openai.ClientConfig
	if cfg.Azure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	if logger == nil {
		logger = logrus.WithField("component", "openai")
	}

	return &OpenAIAnalyzer{
		client:    openai.NewClientWithConfig(clientCfg),
		modelName: cfg.Model,
		logger:    logger,
	}
}

// Analyze implements Analyzer.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request) (Verdict, error) {
	chat := openai.ChatCompletionRequest{
		Model: a.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return Verdict{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, fmt.Errorf("empty response from model")
	}

	text := resp.Choices[0].Message.Content
	a.logger.WithFields(logrus.Fields{"id": resp.ID, "response": text}).Debug("Model answered")
	return ParseVerdict(text)
}

// BuildPrompt renders the user message: the watch words as context, then the
// email itself.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("user is looking for:")
	if len(req.WatchWords) > 0 {
		fmt.Fprintf(&b, "\n\nAdditional context - user is watching for topics related to: %s", strings.Join(req.WatchWords, ", "))
	}
	b.WriteString("\nCheck if this email requires attention\n\n")
	fmt.Fprintf(&b, "email title: %s\n", req.Subject)
	fmt.Fprintf(&b, "email content: %s", truncate(req.Body, maxBodySize))
	return b.String()
}

// ParseVerdict extracts the JSON verdict from a model answer, tolerating
// text around the object.
func ParseVerdict(text string) (Verdict, error) {
	var v Verdict
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Verdict{}, fmt.Errorf("%w: no JSON object", ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[... Content truncated due to size limits ...]"
}
