// Command packager is the CLI entrypoint: it parses the flag surface
// described by spec.md §6 into a packager.StreamDescriptor/JobParams pair,
// wires the chunking -> [encryption] -> muxer pipeline with
// packager.BuildPipeline, and maps pkg/status.Kind values onto process exit
// codes.
//
// Demuxing -input into StreamInfo/MediaSample messages is out of scope for
// this port (SPEC_FULL.md's Non-goals: "generic file I/O abstraction, codec
// parsing beyond subsample-generation needs"), so a Source must be supplied
// by an embedder; this binary always exits Unimplemented after validating
// flags. Without -skip_encryption it does so before building the pipeline;
// with it, only after the pipeline has been built successfully.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-webdl/packager/pkg/packager"
	"github.com/go-webdl/packager/pkg/status"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := parseFlags(args)
	if err != nil {
		return status.InvalidArgument.ExitCode()
	}
	if cfg.showVersion {
		fmt.Println(version)
		return status.OK.ExitCode()
	}

	logLevel := new(slog.LevelVar)
	if err := logLevel.UnmarshalText([]byte(cfg.logLevel)); err != nil {
		logLevel.Set(slog.LevelInfo)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// key_provider config (DRM key acquisition) is out of scope for this
	// port, so only skip_encryption runs can be driven end-to-end; anything
	// else fails fast with a clear reason instead of silently running
	// unencrypted.
	if !cfg.skipEncryption {
		logger.Error("key_provider configuration is not implemented by this build; pass -skip_encryption or supply a crypto.KeySource via an embedding program")
		return status.Unimplemented.ExitCode()
	}

	params := cfg.jobParams(nil)
	params.Logger = logger

	_, closer, err := packager.BuildPipeline(cfg.streamDescriptor(), params, 1)
	if err != nil {
		logger.Error("building pipeline", "error", err)
		return status.InvalidArgument.ExitCode()
	}
	defer closer.Close()

	logger.Error("demuxing -input is not implemented by this build; supply a Source via an embedding program")
	return status.Unimplemented.ExitCode()
}
