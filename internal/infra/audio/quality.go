package audio

import "github.com/osa030/tunebox/internal/domain/settings"

// resampleQuality maps an audio quality onto a beep resampling quality.
func resampleQuality(q settings.AudioQuality) int {
	switch q {
	case settings.QualityMax:
		return 6
	case settings.QualityNormal:
		return 3
	case settings.QualityDataSave:
		return 1
	default:
		return 4
	}
}
