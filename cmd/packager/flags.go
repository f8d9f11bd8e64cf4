package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-webdl/packager/pkg/chunking"
	"github.com/go-webdl/packager/pkg/crypto"
	"github.com/go-webdl/packager/pkg/packager"
	"github.com/go-webdl/packager/pkg/stream"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into
// packager.StreamDescriptor/packager.JobParams, so main.go can validate and
// map, mirroring alxayo-rtmp-go/cmd/rtmp-server's parseFlags/cliConfig
// split.
type cliConfig struct {
	input           string
	streamSelector  string
	output          string
	segmentTemplate string
	initSegment     string
	container       string

	language        string
	drmLabel        string
	hlsGroupID      string
	hlsName         string
	hlsPlaylistName string
	trickPlayFactor uint
	skipEncryption  bool

	segmentDurationS    float64
	subsegmentDurationS float64

	encryptionScheme string
	clearLeadS       float64
	cryptoPeriodS    float64

	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("packager", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.StringVar(&cfg.input, "input", "", "input stream label or path")
	fs.StringVar(&cfg.streamSelector, "stream_selector", "", "audio|video|text|<zero-based index>")
	fs.StringVar(&cfg.output, "output", "", "single-file sink path")
	fs.StringVar(&cfg.segmentTemplate, "segment_template", "", "multi-segment sink path with $Number$/$Time$")
	fs.StringVar(&cfg.initSegment, "init_segment", "", "init-segment path (fMP4/WebM)")
	fs.StringVar(&cfg.container, "container", "mp4", "ts|mp4|webm")

	fs.StringVar(&cfg.language, "language", "", "BCP-47 language override")
	fs.StringVar(&cfg.drmLabel, "drm_label", "", "DRM stream label override")
	fs.StringVar(&cfg.hlsGroupID, "hls_group_id", "", "HLS group id")
	fs.StringVar(&cfg.hlsName, "hls_name", "", "HLS rendition name")
	fs.StringVar(&cfg.hlsPlaylistName, "hls_playlist_name", "", "HLS playlist filename")
	fs.UintVar(&cfg.trickPlayFactor, "trick_play_factor", 0, "trick-play sample-drop factor (0 disables)")
	fs.BoolVar(&cfg.skipEncryption, "skip_encryption", false, "do not encrypt this stream")

	fs.Float64Var(&cfg.segmentDurationS, "segment_duration", 6, "segment duration, seconds")
	fs.Float64Var(&cfg.subsegmentDurationS, "subsegment_duration", 0, "subsegment duration, seconds (0 disables)")

	fs.StringVar(&cfg.encryptionScheme, "encryption_scheme", "cenc", "cenc|cens|cbc1|cbcs|sample-aes")
	fs.Float64Var(&cfg.clearLeadS, "clear_lead", 0, "clear-lead duration, seconds")
	fs.Float64Var(&cfg.cryptoPeriodS, "crypto_period_duration", 0, "crypto-period duration, seconds (0 disables rotation)")

	fs.StringVar(&cfg.logLevel, "log_level", "info", "debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.showVersion {
		return cfg, nil
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *cliConfig) error {
	if cfg.input == "" {
		return fmt.Errorf("invalid-argument: -input is required")
	}
	switch cfg.streamSelector {
	case "audio", "video", "text":
	default:
		if !isUint(cfg.streamSelector) {
			return fmt.Errorf("invalid-argument: -stream_selector must be audio|video|text|<index>, got %q", cfg.streamSelector)
		}
	}
	if cfg.output == "" && cfg.segmentTemplate == "" {
		return fmt.Errorf("invalid-argument: one of -output or -segment_template is required")
	}

	switch cfg.container {
	case "ts", "mp4", "webm":
	default:
		return fmt.Errorf("invalid-argument: -container must be ts|mp4|webm, got %q", cfg.container)
	}

	if cfg.segmentTemplate != "" {
		if err := packager.ValidateSegmentTemplate(cfg.segmentTemplate); err != nil {
			return fmt.Errorf("invalid-argument: %w", err)
		}
	}

	if cfg.segmentDurationS <= 0 {
		return fmt.Errorf("invalid-argument: -segment_duration must be positive")
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid-argument: invalid -log_level %q", cfg.logLevel)
	}

	if !cfg.skipEncryption {
		switch cfg.encryptionScheme {
		case "cenc", "cens", "cbc1", "cbcs", "sample-aes":
		default:
			return fmt.Errorf("invalid-argument: invalid -encryption_scheme %q", cfg.encryptionScheme)
		}
	}

	return nil
}

func isUint(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func containerFormat(s string) packager.ContainerFormat {
	switch s {
	case "ts":
		return packager.TSContainer
	case "mp4":
		return packager.MP4Container
	case "webm":
		return packager.WebMContainer
	default:
		return packager.UnknownContainer
	}
}

func encryptionScheme(s string) stream.ProtectionScheme {
	switch s {
	case "cenc":
		return stream.CENC
	case "cens":
		return stream.CENS
	case "cbc1":
		return stream.CBC1
	case "cbcs":
		return stream.CBCS
	case "sample-aes":
		return stream.AppleSampleAES
	default:
		return stream.CENC
	}
}

func (cfg *cliConfig) streamDescriptor() *packager.StreamDescriptor {
	return &packager.StreamDescriptor{
		Input:           cfg.input,
		StreamSelector:  cfg.streamSelector,
		Output:          cfg.output,
		SegmentTemplate: cfg.segmentTemplate,
		InitSegment:     cfg.initSegment,
		Language:        cfg.language,
		DRMLabel:        cfg.drmLabel,
		HLSGroupID:      cfg.hlsGroupID,
		HLSName:         cfg.hlsName,
		HLSPlaylistName: cfg.hlsPlaylistName,
		TrickPlayFactor: uint32(cfg.trickPlayFactor),
		SkipEncryption:  cfg.skipEncryption,
		Container:       containerFormat(cfg.container),
	}
}

func (cfg *cliConfig) jobParams(keySource crypto.KeySource) *packager.JobParams {
	return &packager.JobParams{
		Chunking: chunking.Params{
			SegmentDurationSeconds:    cfg.segmentDurationS,
			SubsegmentDurationSeconds: cfg.subsegmentDurationS,
		},
		Encryption: crypto.Params{
			Scheme:                encryptionScheme(cfg.encryptionScheme),
			ClearLeadSeconds:      cfg.clearLeadS,
			CryptoPeriodDurationS: cfg.cryptoPeriodS,
		},
		KeySource: keySource,
	}
}
