package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type ConfigStruct struct {
	Spotify   SpotifyConfig
	Youtube   YoutubeConfig
	Navidrome NavidromeConfig
	Downloads DownloadConfig
	Options   Options
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
}

type YoutubeConfig struct {
	APIKey     string
	MaxResults int
}

type NavidromeConfig struct {
	MusicPath string
	URL       string
	Username  string
	Password  string
}

type DownloadConfig struct {
	Dir                 string
	OutputFormat        string
	Workers             int
	FetchTimeoutSeconds int
}

type Options struct {
	Port        string
	CORSOrigins string
}

// IsEnabled reports whether the Navidrome scan hook can be called.
func (n *NavidromeConfig) IsEnabled() bool {
	return n.URL != ""
}

var Config *ConfigStruct

func NewConfig() {
	config := &ConfigStruct{
		Spotify: SpotifyConfig{
			ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		},
		Youtube: YoutubeConfig{
			APIKey:     os.Getenv("YOUTUBE_API_KEY"),
			MaxResults: getMaxResults(),
		},
		Navidrome: NavidromeConfig{
			MusicPath: os.Getenv("NAVIDROME_MUSIC_PATH"),
			URL:       os.Getenv("NAVIDROME_URL"),
			Username:  os.Getenv("NAVIDROME_USERNAME"),
			Password:  os.Getenv("NAVIDROME_PASSWORD"),
		},
		Downloads: DownloadConfig{
			Dir:                 getDownloadDir(),
			OutputFormat:        getOutputFormat(),
			Workers:             getWorkers(),
			FetchTimeoutSeconds: getFetchTimeout(),
		},
		Options: Options{
			Port:        os.Getenv("PORT"),
			CORSOrigins: os.Getenv("CORS_ORIGINS"),
		},
	}

	Config = config
}

func getDownloadDir() string {
	dir := os.Getenv("DOWNLOAD_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "downloads"
		}
		return filepath.Join(home, "Downloads")
	}
	return dir
}

func getOutputFormat() string {
	format := os.Getenv("OUTPUT_FORMAT")
	switch format {
	case "mp3", "m4a", "opus", "flac":
		return format
	default:
		return "mp3"
	}
}

func getWorkers() int {
	workersStr := os.Getenv("DOWNLOAD_WORKERS")
	if workersStr == "" {
		return 4
	}
	workers, err := strconv.Atoi(workersStr)
	if err != nil || workers <= 0 {
		return 4
	}
	if workers > 16 {
		return 16 // Cap: each worker is a yt-dlp process
	}
	return workers
}

func getFetchTimeout() int {
	timeoutStr := os.Getenv("FETCH_TIMEOUT_SECONDS")
	if timeoutStr == "" {
		return 180
	}
	timeout, err := strconv.Atoi(timeoutStr)
	if err != nil || timeout <= 0 {
		return 180
	}
	return timeout
}

func getMaxResults() int {
	limitStr := os.Getenv("YOUTUBE_MAX_RESULTS")
	if limitStr == "" {
		return 10
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 10
	}
	if limit > 50 {
		return 50 // YouTube API max per page
	}
	return limit
}
