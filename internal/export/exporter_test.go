package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
)

// fakeMuxer records which normalization path the exporter takes.
type fakeMuxer struct {
	probedDuration float64
	trimCalls      []float64
	speedCalls     []float64
	trimFails      bool
}

func (f *fakeMuxer) Probe(ctx context.Context) error { return nil }

func (f *fakeMuxer) ImageToClip(ctx context.Context, imagePath string, duration float64, w, h, fps int, outputPath string) error {
	return nil
}

func (f *fakeMuxer) Concat(ctx context.Context, clipPaths []string, audioPath, outputPath string) error {
	return nil
}

func (f *fakeMuxer) Trim(ctx context.Context, clipPath string, targetDuration float64, outputPath string) error {
	f.trimCalls = append(f.trimCalls, targetDuration)
	if f.trimFails {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeMuxer) SpeedAdjust(ctx context.Context, clipPath string, factor float64, outputPath string) error {
	f.speedCalls = append(f.speedCalls, factor)
	return nil
}

func (f *fakeMuxer) AudioDuration(ctx context.Context, path string) (float64, error) {
	return f.probedDuration, nil
}

func (f *fakeMuxer) VideoDuration(ctx context.Context, path string) (float64, error) {
	return f.probedDuration, nil
}

func newTestExporter(t *testing.T, mux *fakeMuxer) *Exporter {
	t.Helper()
	pm, err := paths.New(t.TempDir())
	require.NoError(t, err)
	return NewExporter(nil, pm, mux, nil, NewStatusBoard())
}

func normTestShot() (*models.Shot, *models.ShotVideo) {
	shot := &models.Shot{ShotID: "seq_01_sh01", SequenceID: "seq_01", Start: 0, End: 3.2}
	video := &models.ShotVideo{TargetDuration: 3.2}
	return shot, video
}

func TestNormalizeTrimsLongClip(t *testing.T) {
	mux := &fakeMuxer{probedDuration: 5.0}
	e := newTestExporter(t, mux)
	shot, video := normTestShot()
	video.Duration = 5.0

	out, err := e.normalizeClipDuration(context.Background(), shot, video, "/tmp/in.mp4", t.TempDir(), 0)
	require.NoError(t, err)
	require.NotEqual(t, "/tmp/in.mp4", out)

	// Trim wins over speed change when the clip overruns.
	require.Equal(t, []float64{3.2}, mux.trimCalls)
	require.Empty(t, mux.speedCalls)
}

func TestNormalizeSpeedAdjustsShortClip(t *testing.T) {
	mux := &fakeMuxer{probedDuration: 2.8}
	e := newTestExporter(t, mux)
	shot, video := normTestShot()
	video.Duration = 2.8

	_, err := e.normalizeClipDuration(context.Background(), shot, video, "/tmp/in.mp4", t.TempDir(), 0)
	require.NoError(t, err)
	require.Empty(t, mux.trimCalls)
	require.Len(t, mux.speedCalls, 1)
	require.InDelta(t, 2.8/3.2, mux.speedCalls[0], 1e-9)
}

func TestNormalizeFallsBackToSpeedWhenTrimFails(t *testing.T) {
	mux := &fakeMuxer{probedDuration: 5.0, trimFails: true}
	e := newTestExporter(t, mux)
	shot, video := normTestShot()
	video.Duration = 5.0

	_, err := e.normalizeClipDuration(context.Background(), shot, video, "/tmp/in.mp4", t.TempDir(), 0)
	require.NoError(t, err)
	require.Len(t, mux.trimCalls, 1)
	require.Len(t, mux.speedCalls, 1)
	require.InDelta(t, 5.0/3.2, mux.speedCalls[0], 1e-9)
}

func TestNormalizeKeepsMatchingClip(t *testing.T) {
	mux := &fakeMuxer{probedDuration: 3.25}
	e := newTestExporter(t, mux)
	shot, video := normTestShot()
	video.Duration = 3.25 // within the 0.1s slack

	out, err := e.normalizeClipDuration(context.Background(), shot, video, "/tmp/in.mp4", t.TempDir(), 0)
	require.NoError(t, err)
	require.Equal(t, "/tmp/in.mp4", out)
	require.Empty(t, mux.trimCalls)
	require.Empty(t, mux.speedCalls)
}

func TestParseResolution(t *testing.T) {
	w, h := parseResolution("1280x720")
	require.Equal(t, 1280, w)
	require.Equal(t, 720, h)

	w, h = parseResolution("")
	require.Equal(t, defaultWidth, w)
	require.Equal(t, defaultHeight, h)

	w, h = parseResolution("nonsense")
	require.Equal(t, defaultWidth, w)
	require.Equal(t, defaultHeight, h)
}

func TestStatusBoardDefaultsIdle(t *testing.T) {
	b := NewStatusBoard()
	require.Equal(t, PhaseIdle, b.Get("p1").Status)

	b.Progress("p1", 3, 10, "clip seq_01_sh03")
	s := b.Get("p1")
	require.Equal(t, PhaseRunning, s.Status)
	require.Equal(t, 3, s.Current)
	require.Equal(t, 10, s.Total)

	// Other projects stay idle.
	require.Equal(t, PhaseIdle, b.Get("p2").Status)
}
