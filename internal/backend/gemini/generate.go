// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/media"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
	GoogleMaps   *struct{} `json:"googleMaps,omitempty"`
}

type wireGenerationConfig struct {
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	SpeechConfig       *wireSpeechConf `json:"speechConfig,omitempty"`
}

type wireSpeechConf struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type wireRequest struct {
	Contents         []wireContent         `json:"contents"`
	Tools            []wireTool            `json:"tools,omitempty"`
	GenerationConfig *wireGenerationConfig `json:"generationConfig,omitempty"`
	ToolConfig       *wireToolConfig       `json:"toolConfig,omitempty"`
}

type wireToolConfig struct {
	RetrievalConfig *wireRetrievalConfig `json:"retrievalConfig,omitempty"`
}

type wireRetrievalConfig struct {
	LatLng *wireLatLng `json:"latLng,omitempty"`
}

type wireLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type wireResponse struct {
	Candidates []struct {
		Content           wireContent `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

type wireErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// =============================================================================
// REQUEST ASSEMBLY
// =============================================================================

// buildContents converts dispatch history plus the current turn into Gemini
// content entries. History images ride along as inline data so follow-up
// questions about an analyzed image keep working.
func buildContents(req backend.Request) []wireContent {
	contents := make([]wireContent, 0, len(req.History)+1)

	for _, m := range req.History {
		parts := []wirePart{}
		if m.ImageData != "" {
			parts = append(parts, wirePart{InlineData: &wireInlineData{
				MIMEType: m.MIMEType,
				Data:     m.ImageData,
			}})
		}
		if m.Text != "" {
			parts = append(parts, wirePart{Text: m.Text})
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, wireContent{Role: m.Role, Parts: parts})
	}

	parts := []wirePart{}
	if req.Attachment != nil {
		parts = append(parts, wirePart{InlineData: &wireInlineData{
			MIMEType: req.Attachment.MIMEType,
			Data:     req.Attachment.Data,
		}})
	}
	parts = append(parts, wirePart{Text: req.Prompt})
	contents = append(contents, wireContent{Role: "user", Parts: parts})

	return contents
}

// toolsFor selects grounding tools by mode.
func toolsFor(req backend.Request) ([]wireTool, *wireToolConfig) {
	switch req.Mode {
	case catalog.ModeSearch:
		return []wireTool{{GoogleSearch: &struct{}{}}}, nil
	case catalog.ModeMaps:
		var tc *wireToolConfig
		if req.Location != nil {
			tc = &wireToolConfig{RetrievalConfig: &wireRetrievalConfig{
				LatLng: &wireLatLng{
					Latitude:  req.Location.Latitude,
					Longitude: req.Location.Longitude,
				},
			}}
		}
		return []wireTool{{GoogleMaps: &struct{}{}}}, tc
	default:
		return nil, nil
	}
}

// extractLinks pulls grounding citations out of a response candidate.
func extractLinks(resp *wireResponse) []backend.Link {
	var links []backend.Link
	for _, cand := range resp.Candidates {
		if cand.GroundingMetadata == nil {
			continue
		}
		for _, gc := range cand.GroundingMetadata.GroundingChunks {
			if gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			links = append(links, backend.Link{URI: gc.Web.URI, Title: gc.Web.Title})
		}
	}
	return links
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat implements backend.ChatStreamer via the SSE streaming endpoint.
// Grounding links arrive attached to the chunk that carried them.
func (c *Client) StreamChat(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	if !c.IsConfigured() {
		return nil, backend.ErrNotConfigured
	}

	tools, toolCfg := toolsFor(req)
	body := wireRequest{
		Contents:   buildContents(req),
		Tools:      tools,
		ToolConfig: toolCfg,
	}

	url := c.endpoint(modelFor(req), "streamGenerateContent") + "&alt=sse"
	resp, err := c.sendStream(ctx, url, body)
	if err != nil {
		return nil, err
	}

	chunks := make(chan backend.Chunk, 64)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		reader := backend.NewSSEReader(resp.Body)
		for {
			select {
			case <-ctx.Done():
				chunks <- backend.Chunk{Err: ctx.Err()}
				return
			default:
			}

			data, err := reader.ReadEvent()
			if err != nil {
				if err == io.EOF {
					return
				}
				chunks <- backend.Chunk{Err: fmt.Errorf("read error: %w", err)}
				return
			}

			var wr wireResponse
			if err := json.Unmarshal(data, &wr); err != nil {
				// Skip malformed events rather than killing the stream.
				continue
			}

			out := backend.Chunk{Links: extractLinks(&wr)}
			for _, cand := range wr.Candidates {
				for _, p := range cand.Content.Parts {
					out.TextDelta += p.Text
				}
			}
			if out.TextDelta == "" && len(out.Links) == 0 {
				continue
			}

			select {
			case chunks <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, nil
}

// sendStream issues the streaming POST and maps HTTP error responses.
func (c *Client) sendStream(ctx context.Context, url string, body wireRequest) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, raw)
	}

	return resp, nil
}

// =============================================================================
// ONE-SHOT GENERATION
// =============================================================================

// generate performs a non-streaming generateContent call against a model.
func (c *Client) generate(ctx context.Context, model string, body wireRequest) (*wireResponse, error) {
	if !c.IsConfigured() {
		return nil, backend.ErrNotConfigured
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint(model, "generateContent"), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, raw)
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &wr, nil
}

// imageResult converts a response carrying inline image data into a Result,
// writing the image to disk so the UI and conversation hold a path rather
// than megabytes of base64.
func (c *Client) imageResult(wr *wireResponse) (*backend.Result, error) {
	res := &backend.Result{}
	for _, cand := range wr.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				res.Text += p.Text
			}
			if p.InlineData == nil || res.ImageURL != "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image data: %w", err)
			}
			path, err := c.writeImage(raw, p.InlineData.MIMEType)
			if err != nil {
				return nil, err
			}
			res.ImageURL = path
		}
	}
	if res.ImageURL == "" {
		return nil, fmt.Errorf("model returned no image")
	}
	return res, nil
}

func (c *Client) writeImage(raw []byte, mimeType string) (string, error) {
	dir := c.imageDir
	if dir == "" {
		dir = os.TempDir()
	}
	ext := ".png"
	if mimeType == "image/jpeg" {
		ext = ".jpg"
	}
	path := filepath.Join(dir, "omnichat_"+uuid.NewString()+ext)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}

// GenerateImage implements backend.ImageGenerator. Artistic mode prepends a
// style directive rather than switching models.
func (c *Client) GenerateImage(ctx context.Context, prompt string, mode catalog.Mode) (*backend.Result, error) {
	if mode == catalog.ModeArtisticGen {
		prompt = "In a highly artistic, expressive style: " + prompt
	}
	body := wireRequest{
		Contents: []wireContent{{Role: "user", Parts: []wirePart{{Text: prompt}}}},
		GenerationConfig: &wireGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
	wr, err := c.generate(ctx, ModelImage, body)
	if err != nil {
		return nil, err
	}
	return c.imageResult(wr)
}

// EditImage implements backend.ImageEditor: the uploaded image and the
// instruction go up together, an edited image comes back.
func (c *Client) EditImage(ctx context.Context, prompt string, image backend.ImageInput) (*backend.Result, error) {
	body := wireRequest{
		Contents: []wireContent{{Role: "user", Parts: []wirePart{
			{InlineData: &wireInlineData{MIMEType: image.MIMEType, Data: image.Data}},
			{Text: prompt},
		}}},
		GenerationConfig: &wireGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
	wr, err := c.generate(ctx, ModelImage, body)
	if err != nil {
		return nil, err
	}
	return c.imageResult(wr)
}

// AnalyzeVideo implements backend.VideoAnalyzer over pre-sampled frames.
func (c *Client) AnalyzeVideo(ctx context.Context, prompt string, frames []media.Frame) (*backend.Result, error) {
	if len(frames) == 0 {
		return nil, media.ErrNoFrames
	}
	parts := make([]wirePart, 0, len(frames)+1)
	for _, f := range frames {
		parts = append(parts, wirePart{InlineData: &wireInlineData{
			MIMEType: f.MIMEType,
			Data:     f.Data,
		}})
	}
	parts = append(parts, wirePart{Text: "These are sequential frames from a video. " + prompt})

	wr, err := c.generate(ctx, ModelChat, wireRequest{
		Contents: []wireContent{{Role: "user", Parts: parts}},
	})
	if err != nil {
		return nil, err
	}

	res := &backend.Result{}
	for _, cand := range wr.Candidates {
		for _, p := range cand.Content.Parts {
			res.Text += p.Text
		}
	}
	return res, nil
}

// Speak implements backend.SpeechSynthesizer, returning raw PCM audio.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	speech := &wireSpeechConf{}
	speech.VoiceConfig.PrebuiltVoiceConfig.VoiceName = c.voice

	body := wireRequest{
		Contents: []wireContent{{Role: "user", Parts: []wirePart{{Text: text}}}},
		GenerationConfig: &wireGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speech,
		},
	}
	wr, err := c.generate(ctx, ModelTTS, body)
	if err != nil {
		return nil, err
	}

	for _, cand := range wr.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode audio data: %w", err)
			}
			return raw, nil
		}
	}
	return nil, fmt.Errorf("model returned no audio")
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// handleErrorResponse converts HTTP error responses into the shared backend
// error taxonomy so credential failures are recognizable upstream.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &backend.APIError{
		Provider: catalog.ProviderGemini,
		Status:   statusCode,
	}

	var wireErr wireErrorResponse
	if err := json.Unmarshal(body, &wireErr); err == nil && wireErr.Error.Message != "" {
		apiErr.Code = wireErr.Error.Status
		apiErr.Message = wireErr.Error.Message
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}
