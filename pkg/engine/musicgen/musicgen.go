package musicgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/igolaizola/loopgen/pkg/engine"
	"github.com/igolaizola/loopgen/pkg/ratelimit"
	"github.com/igolaizola/loopgen/pkg/wave"
)

// Client talks to a MusicGen inference server over HTTP. The server
// loads the model on demand and returns raw audio.
type Client struct {
	client    *http.Client
	debug     bool
	ratelimit ratelimit.Lock
	host      string
	token     string
	model     string
}

type Config struct {
	Wait   time.Duration
	Debug  bool
	Client *http.Client
	Host   string
	Token  string
	Model  string
}

const defaultModel = "facebook/musicgen-small"

func New(cfg *Config) *Client {
	wait := cfg.Wait
	if wait == 0 {
		wait = 1 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 5 * time.Minute,
		}
	}
	host := strings.TrimSuffix(cfg.Host, "/")
	if host == "" {
		host = "http://localhost:8001"
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		client:    client,
		ratelimit: ratelimit.New(wait),
		debug:     cfg.Debug,
		host:      host,
		token:     cfg.Token,
		model:     model,
	}
}

// Start asks the server to load the model into memory.
func (c *Client) Start(ctx context.Context) error {
	req := &loadRequest{Model: c.model}
	if _, err := c.do(ctx, "POST", "load", req, nil); err != nil {
		return fmt.Errorf("musicgen: couldn't load model %s: %w", c.model, err)
	}
	return nil
}

// Stop releases the model.
func (c *Client) Stop(ctx context.Context) error {
	req := &loadRequest{Model: c.model}
	if _, err := c.do(ctx, "POST", "unload", req, nil); err != nil {
		return fmt.Errorf("musicgen: couldn't unload model %s: %w", c.model, err)
	}
	return nil
}

type loadRequest struct {
	Model string `json:"model"`
}

type generateRequest struct {
	Model    string  `json:"model"`
	Prompt   string  `json:"prompt"`
	Duration float32 `json:"duration"`
	Format   string  `json:"format"`
}

// Generate produces audio for the prompt. The response body is the
// encoded audio itself, WAV or MP3 depending on the content type.
func (c *Client) Generate(ctx context.Context, prompt string, duration time.Duration) (*wave.Waveform, error) {
	if prompt == "" {
		return nil, fmt.Errorf("musicgen: empty prompt: %w", engine.ErrGeneration)
	}
	req := &generateRequest{
		Model:    c.model,
		Prompt:   prompt,
		Duration: float32(duration.Seconds()),
		Format:   "wav",
	}
	body, err := c.do(ctx, "POST", "generate", req, nil)
	if err != nil {
		return nil, fmt.Errorf("musicgen: %w: %w", engine.ErrGeneration, err)
	}
	var w *wave.Waveform
	switch {
	case bytes.HasPrefix(body, []byte("RIFF")):
		w, err = wave.DecodeWAV(body)
	case bytes.HasPrefix(body, []byte("ID3")) || (len(body) > 1 && body[0] == 0xff):
		w, err = wave.DecodeMP3(body)
	default:
		return nil, fmt.Errorf("musicgen: unrecognized audio format: %w", engine.ErrGeneration)
	}
	if err != nil {
		return nil, fmt.Errorf("musicgen: %w: %w", engine.ErrGeneration, err)
	}
	return w, nil
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

var backoff = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	maxAttempts := 3
	attempts := 0
	var err error
	for {
		if err != nil {
			log.Println("retrying...", err)
		}
		var b []byte
		b, err = c.doAttempt(ctx, method, path, in, out)
		if err == nil {
			return b, nil
		}
		attempts++
		if attempts >= maxAttempts {
			return nil, err
		}
		// If the error is temporary retry
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}

		// Retry only on status codes that signal a busy server
		var errStatus errStatusCode
		if !errors.As(err, &errStatus) {
			return nil, err
		}
		switch int(errStatus) {
		case http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		default:
			return nil, err
		}

		idx := attempts - 1
		if idx >= len(backoff) {
			idx = len(backoff) - 1
		}
		waitTime := backoff[idx]
		c.log("musicgen: server busy, waiting %s before retrying", waitTime)
		t := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

type errStatusCode int

func (e errStatusCode) Error() string {
	return fmt.Sprintf("%d", e)
}

func (c *Client) doAttempt(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var body []byte
	var reqBody io.Reader
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("musicgen: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	c.log("musicgen: do %s %s %s", method, path, string(body))

	u := fmt.Sprintf("%s/api/%s", c.host, path)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("musicgen: couldn't create request: %w", err)
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("content-type", "application/json")
	if c.token != "" {
		req.Header.Set("authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("musicgen: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("musicgen: couldn't read response body: %w", err)
	}
	c.log("musicgen: response %s %s %d (%d bytes)", method, path, resp.StatusCode, len(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := string(respBody)
		if len(errMessage) > 100 {
			errMessage = errMessage[:100] + "..."
		}
		return nil, fmt.Errorf("musicgen: %s %s returned (%s): %w", method, u, errMessage, errStatusCode(resp.StatusCode))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("musicgen: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return respBody, nil
}
