package jobs

import (
	"strings"

	"trackfetch/matching"
)

var pathReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_",
	"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeFilename makes a metadata string safe for use as a path segment.
func SanitizeFilename(name string) string {
	clean := strings.TrimSpace(pathReplacer.Replace(name))
	clean = strings.Trim(clean, ".")
	if clean == "" {
		return "unknown"
	}
	return clean
}

// TrackFilename builds the "Artist - Title.ext" filename for a track.
func TrackFilename(meta matching.TrackMetadata, format string) string {
	artist := meta.Artist()
	if artist == "" {
		artist = "Unknown Artist"
	}
	return SanitizeFilename(artist+" - "+meta.Title) + "." + strings.TrimPrefix(format, ".")
}
