package openai

import (
	"context"
	"fmt"
	"log"

	ai "github.com/sashabaranov/go-openai"
)

// Client wraps the OpenAI chat API.
type Client struct {
	client *ai.Client
	debug  bool
	model  string
}

type Config struct {
	Debug bool
	Token string
	Model string
	Host  string
}

func New(cfg *Config) *Client {
	model := cfg.Model
	if model == "" {
		model = ai.GPT4oMini
	}
	aiCfg := ai.DefaultConfig(cfg.Token)
	if cfg.Host != "" {
		aiCfg.BaseURL = cfg.Host
	}
	return &Client{
		client: ai.NewClientWithConfig(aiCfg),
		debug:  cfg.Debug,
		model:  model,
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// ChatCompletion sends a single user message and returns the first
// choice.
func (c *Client) ChatCompletion(ctx context.Context, msg string) (string, error) {
	c.log("openai: request %s", msg)
	resp, err := c.client.CreateChatCompletion(ctx, ai.ChatCompletionRequest{
		Model: c.model,
		Messages: []ai.ChatCompletionMessage{
			{
				Role:    ai.ChatMessageRoleUser,
				Content: msg,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: couldn't create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	content := resp.Choices[0].Message.Content
	c.log("openai: response %s", content)
	return content, nil
}
