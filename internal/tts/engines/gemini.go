package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/tts"
	"github.com/dastaan/dastaan/internal/ttypes"
	"golang.org/x/time/rate"
)

// Defaults for the Gemini speech client.
const (
	DefaultModel             = "gemini-2.5-flash-preview-tts"
	DefaultBaseURL           = "https://generativelanguage.googleapis.com/v1beta"
	DefaultMaxChars          = 800
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = 2 * time.Second
	DefaultTimeout           = 90 * time.Second
	DefaultRequestsPerMinute = 10
)

// KeySource supplies the API key. It is consulted on every request so a key
// changed while the program runs is picked up by the next call.
type KeySource interface {
	APIKey() (string, error)
}

// GeminiConfig holds configuration for the Gemini engine.
type GeminiConfig struct {
	// Keys supplies the API key (required)
	Keys KeySource

	// Model name - defaults to DefaultModel
	Model string

	// BaseURL of the REST API - defaults to DefaultBaseURL
	BaseURL string

	// Timeout per HTTP request - defaults to DefaultTimeout
	Timeout time.Duration

	// MaxChars is the longest accepted chunk in characters - defaults to DefaultMaxChars
	MaxChars int

	// MaxAttempts is the total number of tries for retryable failures - defaults to DefaultMaxAttempts
	MaxAttempts int

	// BaseDelay seeds the exponential backoff - defaults to DefaultBaseDelay
	BaseDelay time.Duration

	// RequestsPerMinute paces requests; 0 selects the default, negative disables pacing
	RequestsPerMinute int

	// HTTPClient overrides the client used for requests (optional)
	HTTPClient *http.Client
}

// GeminiEngine implements ttypes.SpeechGenerator on the Gemini
// generateContent endpoint with audio output.
type GeminiEngine struct {
	keys        KeySource
	model       string
	baseURL     string
	maxChars    int
	maxAttempts int
	baseDelay   time.Duration
	client      *http.Client
	limiter     *rate.Limiter
}

// NewGeminiEngine creates a new Gemini speech engine.
func NewGeminiEngine(config GeminiConfig) (*GeminiEngine, error) {
	if config.Keys == nil {
		return nil, errors.New("gemini engine requires a key source")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultMaxChars
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = DefaultRequestsPerMinute
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &GeminiEngine{
		keys:        config.Keys,
		model:       config.Model,
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		maxChars:    config.MaxChars,
		maxAttempts: config.MaxAttempts,
		baseDelay:   config.BaseDelay,
		client:      client,
		limiter:     limiter,
	}, nil
}

// Generate converts one chunk to base64 encoded 24 kHz mono PCM.
// Retryable failures are retried with exponential backoff; the error returned
// after the last attempt is the last failure seen.
func (e *GeminiEngine) Generate(ctx context.Context, text string, settings ttypes.GenerationSettings) (string, error) {
	text = tts.NormalizeWhitespace(text)
	if text == "" {
		return "", ttypes.NewError(ttypes.KindValidation, "chunk text is empty", nil)
	}
	if n := utf8.RuneCountInString(text); n > e.maxChars {
		return "", ttypes.NewError(ttypes.KindValidation,
			fmt.Sprintf("chunk too long: %d characters (max %d)", n, e.maxChars), nil).
			WithContext("length", n)
	}

	body, err := json.Marshal(e.buildRequest(text, settings))
	if err != nil {
		return "", fmt.Errorf("failed to marshal speech request: %w", err)
	}

	for attempt := 1; ; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait cancelled: %w", err)
		}

		audio, err := e.generateOnce(ctx, body)
		if err == nil {
			return audio, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var ne *ttypes.NarrationError
		if !errors.As(err, &ne) || !ne.IsRetryable() || attempt >= e.maxAttempts {
			return "", err
		}

		delay := e.backoff(ne.Kind, attempt)
		log.Warn("Speech generation failed, retrying",
			"attempt", attempt, "maxAttempts", e.maxAttempts, "kind", ne.Kind, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff returns the wait before retry number attempt. Rate limits wait twice
// as long as other transient failures.
func (e *GeminiEngine) backoff(kind ttypes.ErrorKind, attempt int) time.Duration {
	delay := e.baseDelay << (attempt - 1)
	if kind == ttypes.KindQuota {
		delay *= 2
	}
	return delay
}

// generateOnce performs a single request.
func (e *GeminiEngine) generateOnce(ctx context.Context, body []byte) (string, error) {
	// Read the key per request so updated credentials apply immediately.
	key, err := e.keys.APIKey()
	if err != nil {
		return "", ttypes.NewError(ttypes.KindConfiguration, "API key unavailable", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return "", ttypes.NewError(ttypes.KindTransient, "speech request failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ttypes.NewError(ttypes.KindTransient, "failed to read speech response", err)
	}

	log.Debug("Speech response", "status", resp.StatusCode, "bytes", len(respBody), "elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, respBody)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", ttypes.NewError(ttypes.KindTransient, "malformed speech response", err)
	}
	return extractAudio(gr)
}

func (e *GeminiEngine) buildRequest(text string, settings ttypes.GenerationSettings) generateRequest {
	safety := make([]safetySetting, 0, len(harmCategories))
	for _, c := range harmCategories {
		safety = append(safety, safetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}

	return generateRequest{
		Contents: []content{{Parts: []part{{Text: BuildPrompt(text, settings.Tone)}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: ProviderVoice(settings.Voice)},
				},
			},
		},
		SafetySettings: safety,
	}
}

// extractAudio returns the inline audio of the first candidate that has one.
func extractAudio(gr generateResponse) (string, error) {
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return "", ttypes.NewError(ttypes.KindContentBlocked,
			"prompt blocked: "+gr.PromptFeedback.BlockReason, nil)
	}
	if len(gr.Candidates) == 0 {
		return "", ttypes.NewError(ttypes.KindTransient, "empty response from speech service", nil)
	}

	for _, c := range gr.Candidates {
		if c.FinishReason != "" && c.FinishReason != "STOP" {
			continue
		}
		if data := inlineAudio(c); data != "" {
			return data, nil
		}
	}

	// No usable audio: report why the first stopped candidate ended.
	for _, c := range gr.Candidates {
		switch {
		case c.FinishReason == "" || c.FinishReason == "STOP":
		case blockedFinishReasons[c.FinishReason]:
			return "", ttypes.NewError(ttypes.KindContentBlocked,
				"generation blocked: "+c.FinishReason, nil)
		default:
			return "", ttypes.NewError(ttypes.KindGeneration,
				"generation interrupted: "+c.FinishReason, nil)
		}
	}

	return "", ttypes.NewError(ttypes.KindTransient, "speech data not found in response parts", nil)
}

func inlineAudio(c candidate) string {
	if c.Content == nil {
		return ""
	}
	for _, p := range c.Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return p.InlineData.Data
		}
	}
	return ""
}

// classifyStatus turns a non-200 response into a NarrationError.
func classifyStatus(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	msg := er.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	lower := strings.ToLower(msg)

	var kind ttypes.ErrorKind
	switch {
	case status == http.StatusTooManyRequests || er.Error.Status == "RESOURCE_EXHAUSTED" || strings.Contains(lower, "quota"):
		kind = ttypes.KindQuota
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		er.Error.Status == "PERMISSION_DENIED" || er.Error.Status == "UNAUTHENTICATED" ||
		strings.Contains(lower, "api key not valid") || strings.Contains(lower, "requested entity was not found"):
		kind = ttypes.KindConfiguration
	case status >= 500 || er.Error.Status == "INTERNAL" || er.Error.Status == "UNAVAILABLE":
		kind = ttypes.KindTransient
	default:
		kind = ttypes.KindGeneration
	}

	return ttypes.NewError(kind, fmt.Sprintf("speech service returned %d: %s", status, msg), nil).
		WithContext("status", status).
		WithContext("apiStatus", er.Error.Status)
}

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type candidate struct {
	Content      *content `json:"content"`
	FinishReason string   `json:"finishReason"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
