package config

import "testing"

func TestGetWorkers(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{name: "default when unset", env: "", want: 4},
		{name: "explicit value", env: "8", want: 8},
		{name: "invalid falls back", env: "lots", want: 4},
		{name: "zero falls back", env: "0", want: 4},
		{name: "negative falls back", env: "-3", want: 4},
		{name: "capped at 16", env: "64", want: 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DOWNLOAD_WORKERS", tt.env)
			if got := getWorkers(); got != tt.want {
				t.Errorf("getWorkers() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetFetchTimeout(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{name: "default when unset", env: "", want: 180},
		{name: "explicit value", env: "60", want: 60},
		{name: "invalid falls back", env: "soon", want: 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FETCH_TIMEOUT_SECONDS", tt.env)
			if got := getFetchTimeout(); got != tt.want {
				t.Errorf("getFetchTimeout() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetOutputFormat(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want string
	}{
		{name: "default", env: "", want: "mp3"},
		{name: "supported format", env: "flac", want: "flac"},
		{name: "unsupported falls back", env: "wav", want: "mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OUTPUT_FORMAT", tt.env)
			if got := getOutputFormat(); got != tt.want {
				t.Errorf("getOutputFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetMaxResults(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{name: "default", env: "", want: 10},
		{name: "explicit", env: "25", want: 25},
		{name: "capped at api max", env: "100", want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("YOUTUBE_MAX_RESULTS", tt.env)
			if got := getMaxResults(); got != tt.want {
				t.Errorf("getMaxResults() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNavidromeIsEnabled(t *testing.T) {
	n := &NavidromeConfig{}
	if n.IsEnabled() {
		t.Error("navidrome without URL must not be enabled")
	}
	n.URL = "http://navidrome:4533"
	if !n.IsEnabled() {
		t.Error("navidrome with URL must be enabled")
	}
}
