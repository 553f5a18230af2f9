package flux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fluxbatch/internal/domain"
)

// GenerateRequest describes one remote generation attempt. Credential is an
// opaque secret supplied per run; it must never be logged or persisted.
type GenerateRequest struct {
	JobID      string
	Prompt     string
	Params     domain.GenerationParams
	Credential string
}

// Generator is the contract the scheduler invokes for one remote attempt. A
// single call covers the full submit/poll/download cycle and blocks until the
// artifact is ready, the service rejects the task, or ctx is done.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*domain.Artifact, error)
}

// Options controls how the Flux client is configured.
type Options struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Logger       *zerolog.Logger
}

// Client talks to the Black Forest Labs generation API. The API is
// asynchronous: a POST to the model endpoint returns a task id, and the task
// is then polled via get_result until it reports Ready or Failed.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.bfl.ml/v1"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		httpClient:   httpClient,
		baseURL:      base,
		apiKey:       strings.TrimSpace(opts.APIKey),
		pollInterval: pollInterval,
		logger:       logger,
	}
}

type submitPayload struct {
	Prompt           string  `json:"prompt"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	SafetyTolerance  int     `json:"safety_tolerance"`
	Guidance         float64 `json:"guidance"`
	Steps            int     `json:"steps"`
	PromptUpsampling bool    `json:"prompt_upsampling"`
	OutputFormat     string  `json:"output_format"`
	Seed             *int64  `json:"seed,omitempty"`
	Raw              bool    `json:"raw,omitempty"`
	AspectRatio      string  `json:"aspect_ratio,omitempty"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Detail string `json:"detail"`
}

type resultResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
	Error string `json:"error"`
}

const (
	statusReady  = "Ready"
	statusFailed = "Failed"
)

// Generate submits the prompt, polls until the task settles, and downloads the
// resulting image bytes.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*domain.Artifact, error) {
	taskID, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("job_id", req.JobID).Str("task_id", taskID).Msg("flux: task submitted")

	sampleURL, err := c.awaitResult(ctx, req, taskID)
	if err != nil {
		return nil, err
	}

	data, err := c.download(ctx, sampleURL)
	if err != nil {
		return nil, err
	}

	return &domain.Artifact{
		SourceURL: sampleURL,
		Format:    req.Params.OutputFormat,
		Width:     req.Params.Width,
		Height:    req.Params.Height,
		Data:      data,
	}, nil
}

func (c *Client) submit(ctx context.Context, req GenerateRequest) (string, error) {
	payload := submitPayload{
		Prompt:           req.Prompt,
		Width:            req.Params.Width,
		Height:           req.Params.Height,
		SafetyTolerance:  req.Params.SafetyTolerance,
		Guidance:         req.Params.Guidance,
		Steps:            req.Params.Steps,
		PromptUpsampling: req.Params.PromptUpsampling,
		OutputFormat:     req.Params.OutputFormat,
		Seed:             req.Params.Seed,
	}
	if req.Params.Model == domain.ModelFluxPro11Ultra {
		payload.Raw = req.Params.RawMode
		payload.AspectRatio = req.Params.AspectRatio
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Class: ClassPermanent, Op: "submit", Err: err}
	}

	endpoint := c.baseURL + "/" + req.Params.Model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Class: ClassPermanent, Op: "submit", Err: err}
	}
	c.setHeaders(httpReq, req.Credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Class: ClassTransient, Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	var out submitResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil && resp.StatusCode < http.StatusBadRequest {
		return "", &Error{Class: ClassTransient, Op: "submit", Err: decodeErr}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := out.Detail
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &Error{Class: classifyStatus(resp.StatusCode), Op: "submit", Status: resp.StatusCode, Message: msg}
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", &Error{Class: ClassTransient, Op: "submit", Message: "response missing task id"}
	}
	return out.ID, nil
}

func (c *Client) awaitResult(ctx context.Context, req GenerateRequest, taskID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		result, err := c.pollOnce(ctx, req.Credential, taskID)
		if err != nil {
			return "", err
		}
		switch result.Status {
		case statusReady:
			if strings.TrimSpace(result.Result.Sample) == "" {
				return "", &Error{Class: ClassTransient, Op: "poll", Message: "ready result missing sample url"}
			}
			return result.Result.Sample, nil
		case statusFailed:
			msg := result.Error
			if msg == "" {
				msg = "generation failed"
			}
			return "", &Error{Class: ClassPermanent, Op: "poll", Message: msg}
		}

		c.logger.Debug().Str("job_id", req.JobID).Str("task_id", taskID).Str("status", result.Status).Msg("flux: task still processing")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, credential, taskID string) (*resultResponse, error) {
	endpoint := fmt.Sprintf("%s/get_result?id=%s", c.baseURL, taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Class: ClassPermanent, Op: "poll", Err: err}
	}
	c.setHeaders(httpReq, credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Class: ClassTransient, Op: "poll", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &Error{Class: classifyStatus(resp.StatusCode), Op: "poll", Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	var out resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Class: ClassTransient, Op: "poll", Err: err}
	}
	return &out, nil
}

func (c *Client) download(ctx context.Context, sampleURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sampleURL, nil)
	if err != nil {
		return nil, &Error{Class: ClassPermanent, Op: "download", Err: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Class: ClassTransient, Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &Error{Class: classifyStatus(resp.StatusCode), Op: "download", Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Class: ClassTransient, Op: "download", Err: err}
	}
	if len(data) == 0 {
		return nil, &Error{Class: ClassTransient, Op: "download", Message: "empty artifact"}
	}
	return data, nil
}

func (c *Client) setHeaders(req *http.Request, credential string) {
	key := strings.TrimSpace(credential)
	if key == "" {
		key = c.apiKey
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Key", key)
}

var _ Generator = (*Client)(nil)
