package youtube

import (
	"context"
	"fmt"
	"html"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"trackfetch/config"
	"trackfetch/jobs"
	"trackfetch/matching"
)

const searchTimeout = 30 * time.Second

// Client searches YouTube for track candidates and fetches the chosen
// stream's audio through yt-dlp.
type Client struct {
	apiKey     string
	maxResults int64
}

func NewClient() *Client {
	cfg := config.Config.Youtube
	return &Client{
		apiKey:     cfg.APIKey,
		maxResults: int64(cfg.MaxResults),
	}
}

// SearchCandidates queries the YouTube Data API for the track and returns
// the raw ranked candidates: id, title, channel and a clock-style duration,
// in the provider's own result order.
func (c *Client) SearchCandidates(ctx context.Context, meta matching.TrackMetadata) ([]matching.Candidate, error) {
	logger := log.WithFields(log.Fields{"module": "youtube", "function": "SearchCandidates"})

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	span := sentry.StartSpan(ctx, "youtube.search")
	span.Description = "Search YouTube API"
	span.SetTag("track_id", meta.ID)
	defer span.Finish()

	service, err := ytapi.NewService(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		logger.Errorf("error creating YouTube client: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("error creating YouTube client: %w", err)
	}

	query := fmt.Sprintf("%s %s", meta.Artist(), meta.Title)
	call := service.Search.List([]string{"snippet"}).
		Context(ctx).
		Q(query + " (official music video|official audio|lyrics|audio|Audio)").
		MaxResults(c.maxResults).
		Type("video").
		VideoCategoryId("10")

	response, err := call.Do()
	if err != nil {
		logger.Errorf("error querying YouTube: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("error querying YouTube: %w", err)
	}

	// Collect video ids in result order for one batched details call.
	order := make([]string, 0, len(response.Items))
	snippets := make(map[string]*ytapi.SearchResultSnippet, len(response.Items))
	for _, item := range response.Items {
		if item.Id.Kind != "youtube#video" {
			continue
		}
		order = append(order, item.Id.VideoId)
		snippets[item.Id.VideoId] = item.Snippet
	}
	if len(order) == 0 {
		span.Status = sentry.SpanStatusOK
		return nil, nil
	}

	videoCall := service.Videos.List([]string{"contentDetails"}).Context(ctx).Id(order...)
	videoResponse, err := videoCall.Do()
	if err != nil {
		logger.Errorf("error getting video details: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("error getting video details: %w", err)
	}

	durations := make(map[string]string, len(videoResponse.Items))
	for _, item := range videoResponse.Items {
		durations[item.Id] = clockDuration(item.ContentDetails.Duration)
	}

	candidates := make([]matching.Candidate, 0, len(order))
	for i, id := range order {
		snippet := snippets[id]
		candidates = append(candidates, matching.Candidate{
			VideoID:  id,
			Title:    html.UnescapeString(snippet.Title),
			Channel:  html.UnescapeString(snippet.ChannelTitle),
			Duration: durations[id],
			Rank:     i + 1,
		})
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(candidates))
	logger.Tracef("found %d candidates for %q", len(candidates), query)
	return candidates, nil
}

// Fetch resolves the video to download and pulls its audio to destPath.
// When videoID is empty the best-scoring candidate is auto-selected; if no
// candidate clears the threshold the error wraps jobs.ErrNoConfidentMatch so
// callers can surface the manual-choice flow.
func (c *Client) Fetch(ctx context.Context, meta matching.TrackMetadata, destPath string, videoID string) error {
	logger := log.WithFields(log.Fields{"module": "youtube", "track_id": meta.ID, "function": "Fetch"})

	if videoID == "" {
		candidates, err := c.SearchCandidates(ctx, meta)
		if err != nil {
			return err
		}
		best, ok := matching.AutoSelect(meta, candidates)
		if !ok {
			return fmt.Errorf("%d candidates for %q: %w", len(candidates), meta.Title, jobs.ErrNoConfidentMatch)
		}
		logger.Debugf("auto-selected %s (score %.3f) for %q", best.VideoID, best.Final, meta.Title)
		videoID = best.VideoID
	}

	return c.download(ctx, videoID, destPath)
}

// download shells out to yt-dlp for the actual transfer, extracting audio
// in the staging file's format. Retries up to 3 times like interactive use.
func (c *Client) download(ctx context.Context, videoID, destPath string) error {
	logger := log.WithFields(log.Fields{"module": "youtube", "video_id": videoID, "function": "download"})

	span := sentry.StartSpan(ctx, "youtube.download")
	span.Description = "Download audio via yt-dlp"
	span.SetTag("video_id", videoID)
	defer span.Finish()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(destPath)), ".")
	if format == "" {
		format = "mp3"
	}
	ytURL := "https://www.youtube.com/watch?v=" + videoID

	var output []byte
	var err error
	for i := range 3 {
		cmd := exec.CommandContext(ctx, "yt-dlp",
			"-f", "bestaudio",
			"--no-playlist",
			"--socket-timeout", "10",
			"--extractor-retries", "1",
			"-x",
			"--audio-format", format,
			"--audio-quality", "0",
			"-o", destPath,
			"--no-warnings",
			ytURL)

		output, err = cmd.CombinedOutput()
		if err != nil {
			logger.WithFields(log.Fields{
				"attempt": i + 1,
				"error":   err,
				"output":  string(output),
			}).Error("yt-dlp command failed")

			if ctx.Err() != nil {
				span.Status = sentry.SpanStatusDeadlineExceeded
				return fmt.Errorf("yt-dlp canceled: %w", ctx.Err())
			}
			if i == 2 {
				span.Status = sentry.SpanStatusInternalError
				sentry.CaptureException(fmt.Errorf("yt-dlp error after 3 attempts: %v, output: %s", err, string(output)))
				return fmt.Errorf("yt-dlp error after 3 attempts: %v, output: %s", err, string(output))
			}
			continue
		}
		break
	}

	span.Status = sentry.SpanStatusOK
	return nil
}

// clockDuration converts an ISO8601 video duration ("PT3M54S") into the
// "mm:ss" / "h:mm:ss" form candidates carry.
func clockDuration(iso string) string {
	s := strings.TrimPrefix(iso, "PT")

	hours, minutes, seconds := 0, 0, 0
	if idx := strings.Index(s, "H"); idx != -1 {
		hours, _ = strconv.Atoi(s[:idx])
		s = s[idx+1:]
	}
	if idx := strings.Index(s, "M"); idx != -1 {
		minutes, _ = strconv.Atoi(s[:idx])
		s = s[idx+1:]
	}
	if idx := strings.Index(s, "S"); idx != -1 {
		seconds, _ = strconv.Atoi(s[:idx])
	}

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
