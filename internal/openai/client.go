// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package openai wraps go-openai with retry, error classification and the
// narrow helpers used by translation, keyword extraction and semantic matching.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/resilience"
)

const (
	// DefaultChatModel is used for translation and keyword extraction
	DefaultChatModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is used by the semantic resolver
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// DefaultMaxRetries defines the maximum number of retry attempts
	DefaultMaxRetries = 2
	// DefaultTimeout bounds one API call
	DefaultTimeout = 10 * time.Second
	// EmbeddingCostPer1KTokens defines the cost per 1K tokens for embeddings (in USD)
	EmbeddingCostPer1KTokens = 0.00002

	serviceName = "openai"
)

// ClientConfig configures the client
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	// EmbeddingDimensions is checked on every embedding when > 0
	EmbeddingDimensions int
	Timeout             time.Duration
	MaxRetries          int
	HTTPClient          *http.Client
}

// DefaultClientConfig returns the defaults for the hosted OpenAI API
func DefaultClientConfig(apiKey string) ClientConfig {
	return ClientConfig{
		APIKey:         apiKey,
		ChatModel:      DefaultChatModel,
		EmbeddingModel: DefaultEmbeddingModel,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
	}
}

// Client wraps the go-openai client with retry and error classification
type Client struct {
	client  *openai.Client
	logger  *zap.Logger
	config  ClientConfig
	backoff resilience.BackoffConfig
}

// EmbeddingUsage tracks embedding API usage and costs
type EmbeddingUsage struct {
	TokensUsed     int
	RequestCount   int
	EstimatedCost  float64
	ProcessingTime time.Duration
}

// EmbeddingResponse represents the response from embedding operations
type EmbeddingResponse struct {
	Embeddings [][]float32
	Usage      EmbeddingUsage
}

// NewClient creates a new client. No request is made until first use.
func NewClient(config ClientConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChatModel == "" {
		config.ChatModel = DefaultChatModel
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultEmbeddingModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	oaConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oaConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	if config.HTTPClient != nil {
		oaConfig.HTTPClient = config.HTTPClient
	}

	backoff := resilience.DefaultBackoffConfig()
	backoff.MaxRetries = config.MaxRetries
	backoff.MaxDelay = config.Timeout
	backoff.RetryOnFunc = resilience.RetryOnTransient

	logger.Info("OpenAI client initialized",
		zap.String("chat_model", config.ChatModel),
		zap.String("embedding_model", config.EmbeddingModel),
		zap.Bool("custom_endpoint", config.BaseURL != ""),
		zap.Int("max_retries", config.MaxRetries))

	return &Client{
		client:  openai.NewClientWithConfig(oaConfig),
		logger:  logger,
		config:  config,
		backoff: backoff,
	}, nil
}

// ChatModel returns the configured chat model
func (c *Client) ChatModel() string {
	return c.config.ChatModel
}

// Ping verifies the endpoint and credentials by listing models
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if _, err := c.client.ListModels(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}

// EmbedTexts generates embeddings for multiple texts in one request
func (c *Client) EmbedTexts(ctx context.Context, texts []string) (*EmbeddingResponse, error) {
	if len(texts) == 0 {
		return &EmbeddingResponse{Embeddings: [][]float32{}}, nil
	}

	start := time.Now()
	var embeddings [][]float32
	var usage openai.Usage
	requests := 0

	err := resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		requests++
		var err error
		embeddings, usage, err = c.createEmbeddings(ctx, texts)
		return err
	})
	if err != nil {
		c.logger.Error("Failed to create embeddings",
			zap.Error(err),
			zap.Int("text_count", len(texts)))
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if err := c.validateEmbeddingDimensions(embeddings); err != nil {
		return nil, fmt.Errorf("embedding validation failed: %w", err)
	}

	processingTime := time.Since(start)
	estimatedCost := float64(usage.PromptTokens) / 1000.0 * EmbeddingCostPer1KTokens

	c.logger.Debug("Embedding generation completed",
		zap.Int("text_count", len(texts)),
		zap.Int("tokens_used", usage.PromptTokens),
		zap.Int("requests_made", requests),
		zap.Float64("estimated_cost_usd", estimatedCost),
		zap.Duration("processing_time", processingTime))

	return &EmbeddingResponse{
		Embeddings: embeddings,
		Usage: EmbeddingUsage{
			TokensUsed:     usage.PromptTokens,
			RequestCount:   requests,
			EstimatedCost:  estimatedCost,
			ProcessingTime: processingTime,
		},
	}, nil
}

// EmbedQuery generates an embedding for a single text
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query text cannot be empty")
	}

	response, err := c.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned for query")
	}
	return response.Embeddings[0], nil
}

func (c *Client) createEmbeddings(ctx context.Context, texts []string) ([][]float32, openai.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.EmbeddingModel),
	})
	if err != nil {
		return nil, openai.Usage{}, classifyError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, openai.Usage{}, fmt.Errorf("unexpected response: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, embedding := range resp.Data {
		embeddings[i] = embedding.Embedding
	}
	return embeddings, resp.Usage, nil
}

func (c *Client) validateEmbeddingDimensions(embeddings [][]float32) error {
	if c.config.EmbeddingDimensions <= 0 {
		return nil
	}
	for i, embedding := range embeddings {
		if len(embedding) != c.config.EmbeddingDimensions {
			return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(embedding), c.config.EmbeddingDimensions)
		}
	}
	return nil
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Messages    []openai.ChatCompletionMessage
	MaxTokens   int
	Temperature float32
	Model       string
}

// ChatCompletionResponse represents the response from a chat completion
type ChatCompletionResponse struct {
	Content      string
	FinishReason string
	Usage        openai.Usage
}

// CreateChatCompletion creates a chat completion, retrying transient failures
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.config.ChatModel
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	c.logger.Debug("Creating chat completion",
		zap.String("model", req.Model),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Float64("temperature", float64(req.Temperature)),
		zap.Int("message_count", len(req.Messages)))

	var resp openai.ChatCompletionResponse
	err := resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		var err error
		resp, err = c.client.CreateChatCompletion(callCtx, openaiReq)
		if err != nil {
			return classifyError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	c.logger.Debug("Chat completion successful",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return &ChatCompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage:        resp.Usage,
	}, nil
}

// Complete sends a system and user prompt and returns the trimmed answer
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	c.logger.Debug("Sending completion prompt",
		zap.String("prompt_preview", truncateText(userPrompt, 100)))

	resp, err := c.CreateChatCompletion(ctx, ChatCompletionRequest{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// classifyError maps go-openai errors onto the upstream error taxonomy
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return resilience.NewUpstreamStatusError(serviceName, apiErr.HTTPStatusCode, apiErr.Message, 0)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return resilience.NewUpstreamStatusError(serviceName, reqErr.HTTPStatusCode, msg, 0)
	}

	return resilience.NewUpstreamTransportError(serviceName, err)
}

// truncateText truncates text to a maximum length for logging
func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
