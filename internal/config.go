package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	ConceptsPrefix       string // "concepts/" - one folder per concept
	InstagramAccountsKey string // "instagram_accounts.json"
	ReplayPrefix         string // "replays/instagram/" - failed upload artifacts

	GoogleClientID     string
	GoogleClientSecret string
	TikTokClientKey    string
	TikTokClientSecret string
	GeminiAPIKey       string

	TelegramToken string
	NotifyChatID  int64 // chat for post summaries, 0 disables
	NATSURL       string

	VideoSelection string // oldest | random
	YouTubePrivacy string
	TikTokPrivacy  string

	ScheduleCron          string // robfig/cron spec with seconds
	ScheduleWindow        time.Duration
	ScheduleTZOffsetHours int
	MonitorInterval       time.Duration

	HTTPAddr      string
	APIKey        string
	FFProbePath   string
	ErrorsLogPath string

	Upload UploadConfig
}

// UploadConfig tunes the resumable upload engine. Read from UPLOAD_* env vars.
type UploadConfig struct {
	ChunkSize    int64         `envconfig:"CHUNK_SIZE" default:"4194304"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	RetryBase    time.Duration `envconfig:"RETRY_BASE" default:"2s"`
	ResyncDelay  time.Duration `envconfig:"RESYNC_DELAY" default:"1s"`
	MaxResyncs   int           `envconfig:"MAX_RESYNCS" default:"20"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	MaxPolls     int           `envconfig:"MAX_POLLS" default:"120"`
}

const (
	SelectOldest = "oldest"
	SelectRandom = "random"
)

func LoadConfig() (Config, error) {
	cfg := Config{
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    os.Getenv("S3_REGION"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3AccessKey: firstNonEmpty(os.Getenv("S3_ACCESS_KEY"), os.Getenv("S3_ACCESS_KEY_ID")),
		S3SecretKey: firstNonEmpty(os.Getenv("S3_SECRET_ACCESS_KEY"), os.Getenv("S3_SECRET_ACCESS_KEY_ID")),

		ConceptsPrefix:       firstNonEmpty(os.Getenv("CONCEPTS_PREFIX"), "concepts/"),
		InstagramAccountsKey: firstNonEmpty(os.Getenv("INSTAGRAM_ACCOUNTS_KEY"), "instagram_accounts.json"),
		ReplayPrefix:         firstNonEmpty(os.Getenv("REPLAY_PREFIX"), "replays/instagram/"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		TikTokClientKey:    os.Getenv("TIKTOK_CLIENT_KEY"),
		TikTokClientSecret: os.Getenv("TIKTOK_CLIENT_SECRET"),
		GeminiAPIKey:       firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY")),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		NATSURL:       os.Getenv("NATS_URL"),

		VideoSelection: firstNonEmpty(os.Getenv("VIDEO_SELECTION"), SelectOldest),
		YouTubePrivacy: firstNonEmpty(os.Getenv("YOUTUBE_PRIVACY"), "private"),
		TikTokPrivacy:  firstNonEmpty(os.Getenv("TIKTOK_PRIVACY"), "SELF_ONLY"),

		ScheduleCron:          firstNonEmpty(os.Getenv("SCHEDULE_CRON"), "0 0 * * * *"),
		ScheduleWindow:        59 * time.Minute,
		ScheduleTZOffsetHours: 9, // JST
		MonitorInterval:       15 * time.Minute,

		HTTPAddr:      firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080"),
		APIKey:        os.Getenv("API_KEY"),
		FFProbePath:   firstNonEmpty(os.Getenv("FFPROBE_PATH"), "ffprobe"),
		ErrorsLogPath: firstNonEmpty(os.Getenv("ERRORS_LOG"), "errors.log"),
	}

	if v := os.Getenv("NOTIFY_CHAT_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.NotifyChatID = n
		}
	}

	if v := os.Getenv("SCHEDULE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ScheduleWindow = d
		}
	}

	if v := os.Getenv("SCHEDULE_TZ_OFFSET_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= -12 && n <= 14 {
			cfg.ScheduleTZOffsetHours = n
		}
	}

	if v := os.Getenv("MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MonitorInterval = d
		}
	}

	if err := envconfig.Process("UPLOAD", &cfg.Upload); err != nil {
		return cfg, fmt.Errorf("upload settings: %w", err)
	}

	if cfg.VideoSelection != SelectOldest && cfg.VideoSelection != SelectRandom {
		return cfg, fmt.Errorf("VIDEO_SELECTION must be %q or %q", SelectOldest, SelectRandom)
	}
	if cfg.S3Endpoint == "" || cfg.S3Region == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return cfg, errors.New("S3_* env vars are required")
	}
	return cfg, nil
}

// ScheduleLocation is the fixed zone posting times are expressed in.
func (c Config) ScheduleLocation() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.ScheduleTZOffsetHours), c.ScheduleTZOffsetHours*3600)
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
