package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"video-publisher/internal"
	"video-publisher/internal/logging"
	"video-publisher/internal/s3"
	"video-publisher/internal/store"
)

// TokenData is the token file written by -token.
type TokenData struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Expiry       string `json:"expiry,omitempty"`
	ChannelID    string `json:"channel_id,omitempty"`
	ChannelTitle string `json:"channel_title,omitempty"`
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	tokenPath := flag.String("token", "", "Also save the token JSON to this path")
	credentialsPath := flag.String("credentials", "", "client_secrets.json; defaults to GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET")
	conceptID := flag.String("concept", "", "Store the refresh token and channel in this concept's config")
	flag.Parse()

	fmt.Println("🔐 YouTube Token Generator")
	fmt.Println("========================================")
	fmt.Println()

	scopes := []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope}
	config, err := oauthConfig(*credentialsPath, scopes)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	authURL := config.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Println("📱 Open this URL in your browser:")
	fmt.Printf("   %s\n", authURL)
	fmt.Println()
	fmt.Println("After authorization, paste the authorization code:")
	fmt.Print("👉 Code: ")

	var authCode string
	if _, err := fmt.Scanln(&authCode); err != nil {
		fmt.Printf("❌ Failed to read auth code: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("⏳ Exchanging code for token...")
	token, err := config.Exchange(ctx, authCode)
	if err != nil {
		fmt.Printf("❌ Failed to exchange token: %v\n", err)
		os.Exit(1)
	}
	if token.RefreshToken == "" {
		fmt.Println("❌ Google returned no refresh token; revoke the app's access and try again")
		os.Exit(1)
	}

	data := TokenData{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry.String(),
	}

	fmt.Println("📺 Fetching channel information...")
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err == nil {
		channels, err := svc.Channels.List([]string{"snippet"}).Mine(true).Do()
		if err != nil {
			fmt.Printf("⚠️  Could not fetch channel info: %v\n", err)
		} else if len(channels.Items) > 0 {
			data.ChannelID = channels.Items[0].Id
			data.ChannelTitle = channels.Items[0].Snippet.Title
			fmt.Printf("✅ Channel: %s\n", data.ChannelTitle)
			fmt.Printf("   ID: %s\n", data.ChannelID)
		}
	}

	if *tokenPath != "" {
		if err := writeToken(*tokenPath, data); err != nil {
			fmt.Printf("❌ Failed to save token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ Token saved: %s\n", *tokenPath)
	}

	if *conceptID == "" {
		fmt.Println()
		fmt.Printf("Refresh token: %s\n", data.RefreshToken)
		fmt.Println("Run again with -concept <id> to store it in a concept.")
		return
	}
	if err := storeToken(ctx, *conceptID, data); err != nil {
		fmt.Printf("❌ Failed to store token in concept %s: %v\n", *conceptID, err)
		os.Exit(1)
	}
	fmt.Printf("✅ YouTube connected for concept %s\n", *conceptID)
}

func oauthConfig(credentialsPath string, scopes []string) (*oauth2.Config, error) {
	if credentialsPath != "" {
		b, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		return google.ConfigFromJSON(b, scopes...)
	}
	id, secret := os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET")
	if id == "" || secret == "" {
		return nil, fmt.Errorf("set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET or pass -credentials")
	}
	return &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost",
		Scopes:       scopes,
	}, nil
}

func writeToken(path string, data TokenData) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o600)
}

func storeToken(ctx context.Context, conceptID string, data TokenData) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New("generate_token.log")
	if err != nil {
		return err
	}
	defer log.Close()
	s3Client, err := s3.New(cfg)
	if err != nil {
		return err
	}
	st, err := store.New(s3Client, cfg, log)
	if err != nil {
		return err
	}
	return st.SaveYouTubeCredentials(ctx, conceptID, data.RefreshToken, data.ChannelID, data.ChannelTitle)
}
