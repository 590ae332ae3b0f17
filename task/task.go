package task

// EncodingMode selects the output container for a whole batch.
type EncodingMode int32

const (
	_ EncodingMode = iota
	ModeOriginalFormat
	ModeTargetWebP
)

func (m EncodingMode) String() string {
	switch m {
	case ModeOriginalFormat:
		return "original_format"
	case ModeTargetWebP:
		return "webp"
	default:
		return "unknown"
	}
}

// PngCompressionMode switches the optional pre-quantization pass of the PNG
// encoder. The PNG container itself stays lossless either way.
type PngCompressionMode int32

const (
	_ PngCompressionMode = iota
	PngLossless
	PngLossy
)

func (m PngCompressionMode) String() string {
	switch m {
	case PngLossless:
		return "lossless"
	case PngLossy:
		return "lossy"
	default:
		return "unknown"
	}
}

// PngOptimizationLevel controls compression effort, not visual quality.
type PngOptimizationLevel int32

const (
	_ PngOptimizationLevel = iota
	PngOptBest
	PngOptDefault
	PngOptFast
)

func (l PngOptimizationLevel) String() string {
	switch l {
	case PngOptBest:
		return "best"
	case PngOptDefault:
		return "default"
	case PngOptFast:
		return "fast"
	default:
		return "unknown"
	}
}

// Item is one unit of batch work. Exactly one of Path or Data is set. Index
// is the ordinal position in the submitted batch and is used to restore input
// order after parallel processing.
type Item struct {
	Index int    `json:"index"`
	Path  string `json:"path,omitempty"`
	Data  []byte `json:"-"`
}

// Settings is the configuration payload consumed verbatim by the orchestrator.
// Numeric ranges are clamped here; encoders never see out-of-range values.
type Settings struct {
	Quality              int                  `json:"quality"`
	Mode                 EncodingMode         `json:"mode"`
	PngMode              PngCompressionMode   `json:"png_compression_mode"`
	PngOptimization      PngOptimizationLevel `json:"png_optimization"`
	ForceAnimatedWebp    bool                 `json:"force_animated_webp"`
	MaxConcurrentUploads int                  `json:"max_concurrent_uploads"`
}

const defaultMaxConcurrentUploads = 5

func DefaultSettings() Settings {
	return Settings{
		Quality:              80,
		Mode:                 ModeOriginalFormat,
		PngMode:              PngLossless,
		PngOptimization:      PngOptDefault,
		MaxConcurrentUploads: defaultMaxConcurrentUploads,
	}
}

// Clamped returns a copy with every numeric field forced into its valid range
// and enum zero values replaced by their defaults.
func (s Settings) Clamped() Settings {
	out := s
	out.Quality = ClampQuality(s.Quality)

	if out.Mode == 0 {
		out.Mode = ModeOriginalFormat
	}

	if out.PngMode == 0 {
		out.PngMode = PngLossless
	}

	if out.PngOptimization == 0 {
		out.PngOptimization = PngOptDefault
	}

	if out.MaxConcurrentUploads < 1 || out.MaxConcurrentUploads > defaultMaxConcurrentUploads {
		out.MaxConcurrentUploads = defaultMaxConcurrentUploads
	}

	return out
}

// ClampQuality forces quality into [0,100].
func ClampQuality(q int) int {
	if q < 0 {
		return 0
	}

	if q > 100 {
		return 100
	}

	return q
}
