package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"video-publisher/internal"
	"video-publisher/internal/httpclient"
	"video-publisher/internal/logging"
	"video-publisher/internal/model"
	"video-publisher/internal/s3"
	"video-publisher/internal/store"
	"video-publisher/internal/upload"
	"video-publisher/internal/uploaders"
	"video-publisher/internal/video"
)

type options struct {
	conceptID   string
	accountID   string
	file        string
	replayKey   string
	caption     string
	coverURL    string
	thumbOffset time.Duration
	ai          bool
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	var o options
	flag.StringVar(&o.conceptID, "concept", "", "Concept whose Instagram account to use")
	flag.StringVar(&o.accountID, "account", "", "Instagram business account id (overrides -concept)")
	flag.StringVar(&o.file, "file", "", "Local video file to upload")
	flag.StringVar(&o.replayKey, "replay", "", "Object key of a stored replay artifact to rerun")
	flag.StringVar(&o.caption, "caption", "", "Caption for a -file upload")
	flag.StringVar(&o.coverURL, "cover", "", "Cover image URL")
	flag.DurationVar(&o.thumbOffset, "thumb-offset", 0, "Thumbnail offset, e.g. 1500ms")
	flag.BoolVar(&o.ai, "ai", false, "Label the reel as AI generated")
	flag.Parse()

	if o.file == "" && o.replayKey == "" {
		fmt.Println("Usage: instagram-upload (-file <path> [-concept <id> | -account <id>] [-caption ...] | -replay <key> [-file <path>])")
		os.Exit(1)
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.ErrorsLogPath)
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, log, o)
	cancel()
	log.Close()
	os.Exit(code)
}

func run(ctx context.Context, cfg internal.Config, log *logging.Logger, o options) int {
	s3Client, err := s3.New(cfg)
	if err != nil {
		log.Errorf("Error creating S3 client: %v", err)
		return 1
	}
	st, err := store.New(s3Client, cfg, log)
	if err != nil {
		log.Errorf("Error creating store: %v", err)
		return 1
	}

	var req *upload.Request
	if o.replayKey != "" {
		req, err = fromReplay(ctx, st, o)
	} else {
		req, err = fromFile(ctx, cfg, st, log, o)
	}
	if err != nil {
		log.Errorf("instagram-upload: %v", err)
		return 1
	}

	engine := upload.New(upload.ConfigFromSettings(cfg.Upload), httpclient.New(), log)
	res, err := engine.Run(ctx, req)
	if err != nil {
		log.Errorf("instagram-upload: %v", err)
		return 1
	}
	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
	return 0
}

func fromReplay(ctx context.Context, st *store.Store, o options) (*upload.Request, error) {
	var r uploaders.Replay
	if err := st.GetObject(ctx, o.replayKey, &r); err != nil {
		return nil, fmt.Errorf("load replay: %w", err)
	}
	token, err := accountToken(ctx, st, lo.Ternary(o.accountID != "", o.accountID, r.AccountID))
	if err != nil {
		return nil, err
	}

	var data io.ReaderAt
	var size int64
	if o.file != "" {
		b, err := os.ReadFile(o.file)
		if err != nil {
			return nil, err
		}
		data, size = bytes.NewReader(b), int64(len(b))
	} else {
		b, err := st.ReadVideo(ctx, &model.VideoFile{Key: r.VideoKey})
		if err != nil {
			return nil, err
		}
		data, size = bytes.NewReader(b), int64(len(b))
	}
	if size != r.Size {
		fmt.Printf("warning: video is %d bytes, replay recorded %d\n", size, r.Size)
	}
	req := r.Request(token, data, size)
	if o.accountID != "" {
		req.AccountID = o.accountID
	}
	return req, nil
}

func fromFile(ctx context.Context, cfg internal.Config, st *store.Store, log *logging.Logger, o options) (*upload.Request, error) {
	accountID := o.accountID
	if accountID == "" && o.conceptID != "" {
		c, err := st.GetConcept(ctx, o.conceptID)
		if err != nil {
			return nil, err
		}
		accountID = c.APIKeys.Instagram
	}
	if accountID == "" {
		return nil, fmt.Errorf("no Instagram account: pass -account or -concept")
	}
	token, err := accountToken(ctx, st, accountID)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(o.file)
	if err != nil {
		return nil, err
	}
	req := &upload.Request{
		AccountID:   accountID,
		AccessToken: token,
		Video:       bytes.NewReader(b),
		Size:        int64(len(b)),
		EntityName:  filepath.Base(o.file),
		Caption:     o.caption,
		CoverURL:    o.coverURL,
		ThumbOffset: o.thumbOffset,
		AIGenerated: o.ai,
	}
	if info, err := video.NewProber(cfg.FFProbePath, log).ProbeFile(ctx, o.file); err == nil {
		req.Width, req.Height, req.Duration = info.Width, info.Height, info.Duration
	} else {
		log.Warnf("instagram-upload: probe %s: %v", o.file, err)
	}
	return req, nil
}

func accountToken(ctx context.Context, st *store.Store, accountID string) (string, error) {
	accounts, err := st.InstagramAccounts(ctx)
	if err != nil {
		return "", err
	}
	acc, ok := lo.Find(accounts, func(a model.InstagramAccount) bool { return a.ID == accountID })
	if !ok {
		return "", fmt.Errorf("instagram account %s not found in loaded accounts", accountID)
	}
	if acc.Token() == "" {
		return "", fmt.Errorf("instagram account %s has no access token", accountID)
	}
	return acc.Token(), nil
}
