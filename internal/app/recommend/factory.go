package recommend

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/infra/config"
)

// NewSourcesFromConfig creates the configured sources. spotify may be nil
// when no source needs it.
func NewSourcesFromConfig(cfgs []config.SourceConfig, spotify SpotifyClient) ([]Source, error) {
	sources := make([]Source, 0, len(cfgs))

	for i, scfg := range cfgs {
		var src Source
		var err error
		zlog.Debug().Msgf("recommend: creating source: index=%d type=%s", i+1, scfg.Type)

		switch scfg.Type {
		case config.SourceSpotify:
			src, err = NewSpotifySource(scfg.Name, spotify, scfg.Settings)
		case config.SourceLastFm:
			src, err = NewLastFmSource(scfg.Name, spotify, scfg.Settings)
		case config.SourceCatalog:
			src, err = NewCatalogSource(scfg.Name, scfg.Settings)
		default:
			return nil, errors.Newf("unsupported source type: %s (source index %d)", scfg.Type, i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create source (index %d, type %s)", i, scfg.Type)
		}

		sources = append(sources, src)
		zlog.Info().Msgf("recommend: registered source: index=%d type=%s name=%s", i+1, scfg.Type, src.Name())
	}

	return sources, nil
}
