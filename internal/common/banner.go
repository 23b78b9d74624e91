package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

var optimusArt = []string{
	`  ____        _   _                      `,
	` / __ \ _ __ | |_(_)_ __ ___  _   _ ___  `,
	`| |  | | '_ \| __| | '_ \  _ \| | | / __| `,
	`| |__| | |_) | |_| | | | | | | | |_| \__ \ `,
	` \____/| .__/ \__|_|_| |_|_| |_|\__,_|___/ `,
	`       |_|                                `,
}

func printHeader(textColor, hr string) {
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	for _, line := range optimusArt {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s  Sandboxed multi-tenant code execution%s\n\n%s\n\n", textColor, banner.ColorReset, hr)
}

// PrintAPIBanner displays the submission front-end's startup banner.
func PrintAPIBanner(config *Config, logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 70) + banner.ColorReset
	printHeader(textColor, hr)

	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	kvPad := 16
	kvLines := [][2]string{
		{"Version", GetVersion()},
		{"Build", GetBuild()},
		{"Commit", GetGitCommit()},
		{"Environment", config.Environment},
		{"Service URL", serviceURL},
		{"Store", config.Store.Addr},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	logger.Info().
		Str("version", GetVersion()).
		Str("environment", config.Environment).
		Str("service_url", serviceURL).
		Str("store_addr", config.Store.Addr).
		Msg("Submission front-end started")
}

// PrintWorkerBanner displays a worker process's startup banner, including
// its resolved (language, queue, image) binding.
func PrintWorkerBanner(config *Config, language, queue, image string, logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 70) + banner.ColorReset
	printHeader(textColor, hr)

	kvPad := 16
	kvLines := [][2]string{
		{"Version", GetVersion()},
		{"Build", GetBuild()},
		{"Commit", GetGitCommit()},
		{"Language", language},
		{"Queue", queue},
		{"Image", image},
		{"Store", config.Store.Addr},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	logger.Info().
		Str("version", GetVersion()).
		Str("language", language).
		Str("queue", queue).
		Str("image", image).
		Msg("Worker started")
}

// PrintShutdownBanner displays the shutdown banner to stderr.
func PrintShutdownBanner(logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 42) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n%s\n", hr)
	fmt.Fprintf(os.Stderr, "%s  OPTIMUS — SHUTTING DOWN%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n\n", hr)

	logger.Info().Msg("Shutting down")
}
