package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/apperr"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
}

func TestRetrySucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), "test", func() error {
		calls++
		if calls < 3 {
			return apperr.New(apperr.KindBackendTransient, "503 from backend")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), "test", func() error {
		calls++
		return apperr.New(apperr.KindBackendPermanent, "400 from backend")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, apperr.KindBackendPermanent, apperr.KindOf(err))
}

func TestRetryExhaustionBecomesPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), "test", func() error {
		calls++
		return apperr.New(apperr.KindBackendTransient, "always down")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
	// Exhausted retries surface as a permanent failure.
	require.Equal(t, apperr.KindBackendPermanent, apperr.KindOf(err))
	require.False(t, apperr.Transient(err))
}

func TestRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, RetryPolicy{Attempts: 3, BaseDelay: time.Hour}, "test", func() error {
		calls++
		return apperr.New(apperr.KindBackendTransient, "down")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls) // no second attempt after cancellation
}

func TestClassifyStatus(t *testing.T) {
	require.NoError(t, classifyStatus(200, nil, "x"))
	require.Equal(t, apperr.KindBackendTransient, apperr.KindOf(classifyStatus(502, []byte("bad gateway"), "x")))
	require.Equal(t, apperr.KindBackendPermanent, apperr.KindOf(classifyStatus(422, []byte("bad input"), "x")))
}

func TestStripJSONFences(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                        "{\"a\":1}",
		"```json\n{\"a\":1}\n```":          "{\"a\":1}",
		"```\n{\"a\":1}\n```":              "{\"a\":1}",
		"  ```json\n{\"a\": [1,2]}\n``` ":  "{\"a\": [1,2]}",
	}
	for in, want := range cases {
		require.Equal(t, want, StripJSONFences(in), "input %q", in)
	}
}

func TestFalImagesResponse(t *testing.T) {
	var empty FalImagesResponse
	_, err := empty.FirstImageURL()
	require.Error(t, err)

	ok := FalImagesResponse{Images: []FalImage{{URL: "https://cdn/x.png"}}}
	url, err := ok.FirstImageURL()
	require.NoError(t, err)
	require.Equal(t, "https://cdn/x.png", url)
}

func TestFalVideoResponseShapes(t *testing.T) {
	flat := FalVideoResponse{VideoURL: "https://cdn/v.mp4"}
	url, err := flat.URL()
	require.NoError(t, err)
	require.Equal(t, "https://cdn/v.mp4", url)

	nested := FalVideoResponse{Video: &FalVideoOutput{URL: "https://cdn/n.mp4", Duration: 5}}
	url, err = nested.URL()
	require.NoError(t, err)
	require.Equal(t, "https://cdn/n.mp4", url)

	var none FalVideoResponse
	_, err = none.URL()
	require.Error(t, err)
}
