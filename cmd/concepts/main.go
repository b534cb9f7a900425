package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"video-publisher/internal"
	"video-publisher/internal/logging"
	"video-publisher/internal/model"
	"video-publisher/internal/s3"
	"video-publisher/internal/scheduler"
	"video-publisher/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	var (
		list         = flag.Bool("list", false, "List concepts with their schedule and queue sizes")
		create       = flag.String("create", "", "Create a concept with this name")
		conceptID    = flag.String("concept", "", "Concept id for -enqueue, -times and -platforms")
		enqueue      = flag.String("enqueue", "", "Local video file to add to the concept's queue")
		times        = flag.String("times", "", "Comma separated posting times, e.g. 09:00,18:30")
		platforms    = flag.String("platforms", "", "Comma separated platforms to enable, e.g. YouTube,Instagram")
		addInstagram = flag.String("add-instagram", "", "Register an Instagram account as <id>:<access token>")
	)
	flag.Parse()

	if !*list && *create == "" && *enqueue == "" && *times == "" && *platforms == "" && *addInstagram == "" {
		fmt.Println("Usage: concepts [-list] [-create <name>] [-concept <id> (-enqueue <file> | -times 09:00,18:00 | -platforms YouTube,TikTok)] [-add-instagram <id>:<token>]")
		os.Exit(1)
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New("concepts.log")
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	s3Client, err := s3.New(cfg)
	if err != nil {
		log.Errorf("Error creating S3 client: %v", err)
		os.Exit(1)
	}
	st, err := store.New(s3Client, cfg, log)
	if err != nil {
		log.Errorf("Error creating store: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	failed := false
	step := func(title string, fn func() error) {
		fmt.Printf("=== %s ===\n", title)
		if err := fn(); err != nil {
			log.Errorf("%s: %v", title, err)
			fmt.Printf("❌ %v\n", err)
			failed = true
			return
		}
		fmt.Println("✅ done")
	}

	if *create != "" {
		step("Creating concept "+*create, func() error {
			id, _, err := st.CreateConcept(ctx, *create)
			if err == nil {
				fmt.Printf("id: %s\n", id)
			}
			return err
		})
	}

	if *addInstagram != "" {
		step("Registering Instagram account", func() error {
			id, token, ok := strings.Cut(*addInstagram, ":")
			if !ok || id == "" || token == "" {
				return fmt.Errorf("expected <id>:<token>")
			}
			return st.SaveInstagramAccount(ctx, model.InstagramAccount{ID: id, AccessToken: token})
		})
	}

	if *times != "" || *platforms != "" || *enqueue != "" {
		if *conceptID == "" {
			fmt.Println("❌ -concept is required")
			os.Exit(1)
		}
	}

	if *times != "" || *platforms != "" {
		step("Updating concept "+*conceptID, func() error {
			c, err := st.GetConcept(ctx, *conceptID)
			if err != nil {
				return err
			}
			if *times != "" {
				c.PostingTimes = scheduler.NormalizePostingTimes(strings.Split(*times, ","))
				if len(c.PostingTimes) == 0 {
					return fmt.Errorf("no valid posting time in %q", *times)
				}
				*c = scheduler.WithNormalizedPostingTimes(*c)
			}
			if *platforms != "" {
				var enabled []model.Platform
				for _, s := range strings.Split(*platforms, ",") {
					p, err := model.ParsePlatform(s)
					if err != nil {
						return err
					}
					enabled = append(enabled, p)
				}
				c.Platforms = model.PlatformsOf(enabled...)
			}
			return st.SaveConcept(ctx, *conceptID, c)
		})
	}

	if *enqueue != "" {
		step("Enqueuing "+filepath.Base(*enqueue), func() error {
			f, err := os.Open(*enqueue)
			if err != nil {
				return err
			}
			defer f.Close()
			v, err := st.Enqueue(ctx, *conceptID, filepath.Base(*enqueue), f)
			if err == nil && v != nil {
				fmt.Printf("queued %s (%d bytes)\n", v.Name, v.Size)
			}
			return err
		})
	}

	if *list {
		step("Concepts", func() error {
			ids, err := st.ListConcepts(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				c, err := st.GetConcept(ctx, id)
				if err != nil {
					fmt.Printf("- %s: %v\n", id, err)
					continue
				}
				queue, _ := st.ListVideos(ctx, id, model.FolderQueue)
				posted, _ := st.ListVideos(ctx, id, model.FolderPosted)
				fmt.Printf("- %s (%s) times=%s platforms=%v queue=%d posted=%d\n",
					id, c.Name, strings.Join(scheduler.EnsurePostingTimes(*c), ","), c.Platforms.Enabled(), len(queue), len(posted))
			}
			return nil
		})
	}

	if failed {
		os.Exit(1)
	}
}
