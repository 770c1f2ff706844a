package main

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	appConfig "trackfetch/config"
	"trackfetch/database"
	"trackfetch/handlers"
	"trackfetch/jobs"
	"trackfetch/navidrome"
	appSentry "trackfetch/sentry"
	"trackfetch/spotify"
	"trackfetch/tagging"
	"trackfetch/youtube"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf("Error loading .env file: %v", err)
	}

	log.SetFormatter(&nested.Formatter{
		HideKeys:    false,
		FieldsOrder: []string{"module", "function"},
	})

	appConfig.NewConfig()
	appSentry.Init()

	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg := appConfig.Config

	var catalog handlers.Catalog
	var metadata jobs.MetadataProvider
	spotifyClient, err := spotify.NewClient(ctx)
	if err != nil {
		log.Warnf("Spotify client unavailable, downloads disabled: %v", err)
	} else {
		catalog = spotifyClient
		metadata = spotifyClient
	}

	youtubeClient := youtube.NewClient()

	var history *database.Database
	db, err := database.New()
	if err != nil {
		log.Warnf("History database unavailable: %v", err)
	} else {
		history = db
		defer db.Close()
	}

	manager := jobs.NewManager(
		metadata,
		youtubeClient,
		tagging.NewTagger(),
		navidrome.NewPublisher(&cfg.Navidrome),
		historyRecorder(history),
		jobs.Options{
			StagingDir:   filepath.Join(cfg.Downloads.Dir, "temp"),
			OutputFormat: cfg.Downloads.OutputFormat,
			FetchTimeout: time.Duration(cfg.Downloads.FetchTimeoutSeconds) * time.Second,
			Workers:      cfg.Downloads.Workers,
		},
	)

	router := gin.Default()
	router.Use(appSentry.GetSentryGin())
	router.Use(handlers.CORSMiddleware(cfg.Options.CORSOrigins))

	api := handlers.NewManager(manager, catalog, youtubeClient, historyReader(history), cfg.Navidrome.MusicPath)
	api.Register(router)

	port := cfg.Options.Port
	if port == "" {
		port = "8080"
	}
	log.Infof("Starting server on :%s", port)
	return http.ListenAndServe(":"+port, router)
}

// historyRecorder narrows *database.Database to the jobs interface while
// keeping a typed nil from leaking into the interface value.
func historyRecorder(db *database.Database) jobs.HistoryRecorder {
	if db == nil {
		return nil
	}
	return db
}

func historyReader(db *database.Database) handlers.History {
	if db == nil {
		return nil
	}
	return db
}
