// Package http provides the HTTP-backed diarization provider. It implements
// the diarize.Provider interface against the diarization backend's REST API:
//
//	POST {base}/v1/diarize        — synchronous per-chunk diarization
//	POST {base}/v1/diarize/final  — asynchronous final-chunk submission (202)
//
// Audio is uploaded as multipart/form-data with the session context carried
// in form fields; responses are JSON.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/solinvox/medscribe/pkg/provider/diarize"
	"github.com/solinvox/medscribe/pkg/types"
)

const (
	diarizePath    = "/v1/diarize"
	finalChunkPath = "/v1/diarize/final"

	// defaultTimeout bounds a single chunk call. Diarization of a 60s chunk
	// can take seconds to minutes depending on backend load.
	defaultTimeout = 2 * time.Minute
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent in the Authorization header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout overrides the per-request timeout. Default: 2 minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpc.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpc = hc
	}
}

// Client implements diarize.Provider against the backend's REST API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// New creates a Client for the backend at baseURL. baseURL must be non-empty;
// a trailing slash is tolerated.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("diarize: baseURL must not be empty")
	}
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// chunkResponse is the JSON body returned by POST /v1/diarize.
type chunkResponse struct {
	DetectedSpeakers  []string                      `json:"detected_speakers"`
	Segments          []wireSegment                 `json:"segments"`
	StartOverlapStats map[string]types.SpeakerStats `json:"start_overlap_stats"`
	EndOverlapStats   map[string]types.SpeakerStats `json:"end_overlap_stats"`
	ConsultationType  string                        `json:"consultation_type,omitempty"`
}

// wireSegment mirrors the backend's segment shape. Timestamps are
// chunk-relative seconds.
type wireSegment struct {
	SpeakerID   string  `json:"speaker_id"`
	SpeakerRole string  `json:"speaker_role,omitempty"`
	Text        string  `json:"text"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
}

// ackResponse is the JSON body returned by POST /v1/diarize/final.
type ackResponse struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"job_id,omitempty"`
}

// Diarize implements [diarize.Provider].
func (c *Client) Diarize(ctx context.Context, req diarize.Request) (*diarize.Result, error) {
	fields := map[string]string{
		"consultation_id": req.ConsultationID,
		"language":        req.Language,
		"chunk_index":     strconv.Itoa(req.ChunkIndex),
		"chunk_start":     formatSeconds(req.ChunkStart),
		"chunk_end":       formatSeconds(req.ChunkEnd),
	}
	if req.AppointmentID != "" {
		fields["appointment_id"] = req.AppointmentID
	}
	if req.PatientRef != "" {
		fields["patient_ref"] = req.PatientRef
	}

	body, err := c.postAudio(ctx, c.baseURL+diarizePath, fields, req.Audio, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var resp chunkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("diarize: decode response: %w", err)
	}

	segments := make([]types.DiarizedSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, types.DiarizedSegment{
			SpeakerID:   s.SpeakerID,
			SpeakerRole: s.SpeakerRole,
			Text:        s.Text,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			ChunkIndex:  req.ChunkIndex,
		})
	}

	return &diarize.Result{
		Segments:          segments,
		DetectedSpeakers:  resp.DetectedSpeakers,
		StartOverlapStats: nonNilStats(resp.StartOverlapStats),
		EndOverlapStats:   nonNilStats(resp.EndOverlapStats),
		ConsultationType:  resp.ConsultationType,
	}, nil
}

// SubmitFinalChunk implements [diarize.Provider].
func (c *Client) SubmitFinalChunk(ctx context.Context, req diarize.FinalChunkRequest) (*diarize.FinalChunkAck, error) {
	fields := map[string]string{
		"consultation_id": req.ConsultationID,
		"language":        req.Language,
		"chunk_index":     strconv.Itoa(req.ChunkIndex),
		"chunk_start":     formatSeconds(req.ChunkStart),
		"chunk_end":       formatSeconds(req.ChunkEnd),
	}

	body, err := c.postAudio(ctx, c.baseURL+finalChunkPath, fields, req.Audio, http.StatusAccepted)
	if err != nil {
		return nil, err
	}

	var resp ackResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("diarize: decode final-chunk ack: %w", err)
	}
	return &diarize.FinalChunkAck{Accepted: resp.Accepted, JobID: resp.JobID}, nil
}

// postAudio builds a multipart request with the given form fields plus the
// audio payload as the "audio" file part, sends it, and returns the response
// body after checking for wantStatus.
func (c *Client) postAudio(ctx context.Context, url string, fields map[string]string, audio []byte, wantStatus int) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("diarize: write field %q: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("audio", "chunk.webm")
	if err != nil {
		return nil, fmt.Errorf("diarize: create audio part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("diarize: write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("diarize: finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("diarize: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("diarize: request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("diarize: read response: %w", err)
	}
	if httpResp.StatusCode != wantStatus {
		return nil, fmt.Errorf("diarize: unexpected status %d: %s", httpResp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

// formatSeconds renders a seconds offset without trailing zeros.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// nonNilStats normalises absent stats maps to empty non-nil maps, so the
// matcher can range over them without nil checks.
func nonNilStats(m map[string]types.SpeakerStats) map[string]types.SpeakerStats {
	if m == nil {
		return map[string]types.SpeakerStats{}
	}
	return m
}

// truncate limits an error-body excerpt to n bytes.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
