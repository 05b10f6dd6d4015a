// Package audio provides playback primitives: a speaker player that decodes
// MP3 streams with beep, and a silent player that only keeps time.
package audio

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/persistence"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Errors
var (
	ErrNoStream       = errors.New("track has no stream url")
	ErrNothingLoaded  = errors.New("no track loaded")
	ErrAudioDisabled  = errors.New("audio output is not available in this build")
	ErrStreamTooLarge = errors.New("stream exceeds size limit")
)

// BlobReader reads cached audio.
type BlobReader interface {
	GetTrackBlob(ctx context.Context, trackID string) ([]byte, error)
}

// CacheFunc receives the bytes of a downloaded stream for offline use.
type CacheFunc func(ctx context.Context, t track.Track, data []byte)

// LoaderConfig configures stream retrieval.
type LoaderConfig struct {
	Timeout time.Duration // Per-download timeout
	MaxSize int64         // Upper bound for one stream, 0 for no limit
}

// Loader fetches the encoded audio of a track, preferring the offline cache.
type Loader struct {
	blobs      BlobReader
	cache      CacheFunc
	httpClient *http.Client
	maxSize    int64
}

// NewLoader creates a loader. blobs and cache may be nil.
func NewLoader(blobs BlobReader, cache CacheFunc, cfg LoaderConfig) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Loader{
		blobs:      blobs,
		cache:      cache,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxSize:    cfg.MaxSize,
	}
}

// Fetch returns the encoded audio of t.
func (l *Loader) Fetch(ctx context.Context, t track.Track) ([]byte, error) {
	if l.blobs != nil {
		data, err := l.blobs.GetTrackBlob(ctx, t.ID)
		switch {
		case err == nil && len(data) > 0:
			zlog.Debug().Msgf("audio: using cached stream: id=%s bytes=%d", t.ID, len(data))
			return data, nil
		case err != nil && !errors.Is(err, persistence.ErrNotFound):
			zlog.Warn().Msgf("audio: failed to read cached stream: id=%s error=%v", t.ID, err)
		}
	}

	if t.Preview == "" {
		return nil, ErrNoStream
	}
	data, err := l.download(ctx, t.Preview)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download stream for %s", t.ID)
	}
	if l.cache != nil {
		l.cache(ctx, t, data)
	}
	return data, nil
}

func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status code: %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if l.maxSize > 0 {
		body = io.LimitReader(resp.Body, l.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read stream")
	}
	if l.maxSize > 0 && int64(len(data)) > l.maxSize {
		return nil, ErrStreamTooLarge
	}
	return data, nil
}
