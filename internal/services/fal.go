package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/muvi/internal/apperr"
)

// ---------------------------------------------------------------------------
// FAL Generation Backend
// Single HTTP client for every fal.ai call the pipeline makes: text-to-image,
// img2img editing, image-to-video, audio understanding, Whisper transcription,
// and file uploads to FAL storage.
// ---------------------------------------------------------------------------

const (
	falRunBaseURL  = "https://fal.run"
	falRestBaseURL = "https://rest.alpha.fal.ai"

	// Model endpoints on fal.run
	FalNanobanana     = "fal-ai/nano-banana"
	FalNanobananaEdit = "fal-ai/nano-banana/edit"
	FalSeedream45     = "fal-ai/bytedance/seedream/v4.5/text-to-image"
	FalSeedream45Edit = "fal-ai/bytedance/seedream/v4.5/edit"
	FalFlux2          = "fal-ai/flux-2"
	FalFlux2Edit      = "fal-ai/flux-2/edit"
	FalAudio          = "fal-ai/audio-understanding"
	FalWhisper        = "fal-ai/whisper"
	FalLTX2I2V        = "fal-ai/ltx-2/image-to-video"
	FalKlingI2V       = "fal-ai/kling-video/v2.1/standard/image-to-video"
	FalVeo31I2V       = "fal-ai/veo3.1/image-to-video"
	FalWanI2V         = "fal-ai/wan/v2.2-a14b/image-to-video"
	FalHailuoI2V      = "fal-ai/minimax/hailuo-02/standard/image-to-video"
	FalKandinsky5I2V  = "fal-ai/kandinsky5/image-to-video"

	falGenerateTimeout = 300 * time.Second
	falDownloadTimeout = 60 * time.Second
	falHeadTimeout     = 10 * time.Second
)

type FalService struct {
	apiKey   string
	client   *http.Client
	headClnt *http.Client
}

func NewFalService(apiKey string) *FalService {
	return &FalService{
		apiKey: apiKey,
		client: &http.Client{
			Timeout: falGenerateTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		headClnt: &http.Client{Timeout: falHeadTimeout},
	}
}

func (s *FalService) authHeader() string { return "Key " + s.apiKey }

// classifyStatus turns an HTTP status into the retryable/permanent taxonomy.
func classifyStatus(status int, body []byte, label string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := string(body)
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if status >= 500 {
		return apperr.New(apperr.KindBackendTransient, "%s returned %d: %s", label, status, msg)
	}
	return apperr.New(apperr.KindBackendPermanent, "%s returned %d: %s", label, status, msg)
}

// Invoke POSTs payload to a fal.run model endpoint and decodes the JSON
// response into out. 5xx and transport failures come back transient; 4xx
// permanent. Retries are the caller's concern (see Retry).
func (s *FalService) Invoke(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", endpoint, err)
	}

	url := falRunBaseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", s.authHeader())
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindBackendTransient, err, "fal call %s failed", endpoint)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindBackendTransient, err, "fal call %s read failed", endpoint)
	}
	log.Printf("[FAL] %s → %d (%.1fs, %d bytes)", endpoint, resp.StatusCode, time.Since(start).Seconds(), len(respBody))

	if err := classifyStatus(resp.StatusCode, respBody, "fal "+endpoint); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("fal %s returned unparseable JSON: %w", endpoint, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Storage: upload local files, HEAD-revalidate cached uploads, download results
// ---------------------------------------------------------------------------

type falUploadInitiate struct {
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name"`
}

type falUploadTicket struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

// UploadFile pushes a local file to FAL storage and returns its long-lived
// external URL. Two-step flow: initiate for a presigned PUT, then upload.
func (s *FalService) UploadFile(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindResourceMissing, err, "cannot read %s for upload", localPath)
	}

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	initBody, _ := json.Marshal(falUploadInitiate{
		ContentType: contentType,
		FileName:    filepath.Base(localPath),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		falRestBaseURL+"/storage/upload/initiate", bytes.NewReader(initBody))
	if err != nil {
		return "", fmt.Errorf("failed to create initiate request: %w", err)
	}
	req.Header.Set("Authorization", s.authHeader())
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindBackendTransient, err, "upload initiate failed")
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err := classifyStatus(resp.StatusCode, body, "fal upload initiate"); err != nil {
		return "", err
	}

	var ticket falUploadTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return "", fmt.Errorf("upload initiate returned unparseable JSON: %w", err)
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, ticket.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	putReq.Header.Set("Content-Type", contentType)
	putReq.ContentLength = int64(len(data))

	putResp, err := s.client.Do(putReq)
	if err != nil {
		return "", apperr.Wrap(apperr.KindBackendTransient, err, "upload PUT failed")
	}
	putBody, _ := io.ReadAll(putResp.Body)
	putResp.Body.Close()
	if err := classifyStatus(putResp.StatusCode, putBody, "fal upload"); err != nil {
		return "", err
	}

	log.Printf("[FAL] Uploaded %s (%d bytes) → %s", filepath.Base(localPath), len(data), ticket.FileURL)
	return ticket.FileURL, nil
}

// HeadOK revalidates a cached external URL. Any failure means the cache entry
// is stale and the upload should be repeated.
func (s *FalService) HeadOK(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.headClnt.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// Download fetches url into destPath (60s timeout).
func (s *FalService) Download(ctx context.Context, url, destPath string) error {
	dctx, cancel := context.WithTimeout(ctx, falDownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindBackendTransient, err, "download of %s failed", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return classifyStatus(resp.StatusCode, body, "download")
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", destPath, err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(destPath)
		return apperr.Wrap(apperr.KindBackendTransient, err, "download of %s interrupted", url)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audio understanding + Whisper
// ---------------------------------------------------------------------------

type falAudioRequest struct {
	AudioURL string `json:"audio_url"`
	Prompt   string `json:"prompt"`
}

type falAudioResponse struct {
	Output string `json:"output"`
}

// UnderstandAudio sends the track to the audio-understanding model and
// returns its raw output. The output is an opaque JSON blob that may be
// wrapped in markdown fences; the analyzer parses it defensively.
func (s *FalService) UnderstandAudio(ctx context.Context, audioURL, prompt string) (string, error) {
	var resp falAudioResponse
	err := Retry(ctx, DefaultRetry, "audio understanding", func() error {
		return s.Invoke(ctx, FalAudio, falAudioRequest{AudioURL: audioURL, Prompt: prompt}, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.Output == "" {
		return "", apperr.New(apperr.KindBackendPermanent, "audio understanding returned empty output")
	}
	return resp.Output, nil
}

type falWhisperRequest struct {
	AudioURL   string `json:"audio_url"`
	Language   string `json:"language,omitempty"`
	ChunkLevel string `json:"chunk_level,omitempty"`
	Version    string `json:"version,omitempty"`
}

type falWhisperResponse struct {
	Text string `json:"text"`
}

// Transcribe runs Whisper over the uploaded track and returns the transcript.
func (s *FalService) Transcribe(ctx context.Context, audioURL, language string) (string, error) {
	if language == "" {
		language = "en"
	}
	var resp falWhisperResponse
	err := Retry(ctx, DefaultRetry, "whisper", func() error {
		return s.Invoke(ctx, FalWhisper, falWhisperRequest{
			AudioURL:   audioURL,
			Language:   language,
			ChunkLevel: "segment",
			Version:    "3",
		}, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ---------------------------------------------------------------------------
// Shared response shapes for image and video endpoints
// ---------------------------------------------------------------------------

// FalImage is one generated image in a model response.
type FalImage struct {
	URL string `json:"url"`
}

// FalImagesResponse is the {images:[{url}]} shape shared by the t2i and edit
// endpoints of all three model families.
type FalImagesResponse struct {
	Images []FalImage `json:"images"`
}

// FirstImageURL returns the first image URL or a permanent error.
func (r *FalImagesResponse) FirstImageURL() (string, error) {
	if len(r.Images) == 0 || r.Images[0].URL == "" {
		return "", apperr.New(apperr.KindBackendPermanent, "model returned no images")
	}
	return r.Images[0].URL, nil
}

// FalVideoOutput is the nested video object in a completed generation
// response.
type FalVideoOutput struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
}

// FalVideoResponse covers both {video:{url}} and flat {video_url} shapes the
// video endpoints return.
type FalVideoResponse struct {
	Video    *FalVideoOutput `json:"video,omitempty"`
	VideoURL string          `json:"video_url,omitempty"`
}

// URL returns the video URL regardless of which shape the model used.
func (r *FalVideoResponse) URL() (string, error) {
	if r.Video != nil && r.Video.URL != "" {
		return r.Video.URL, nil
	}
	if r.VideoURL != "" {
		return r.VideoURL, nil
	}
	return "", apperr.New(apperr.KindBackendPermanent, "model returned no video")
}
