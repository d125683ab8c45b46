package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/client"
	"github.com/cartelera-live/cartelera/internal/domain"
	"github.com/cartelera-live/cartelera/internal/imagecache"
	"github.com/cartelera-live/cartelera/internal/logger"
	"github.com/cartelera-live/cartelera/internal/workers"
)

// newKioskCmd builds the display-side client: the live update channel plus
// the local image cache, keeping every product image resolved before the
// display needs it.
func newKioskCmd() *cobra.Command {
	var (
		serverURL string
		apiURL    string
		credPath  string
		cacheDir  string
		pairToken string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "kiosk",
		Short: "Run the kiosk display client",
		Long:  "Connect to the live update channel, keep the menu's images cached locally and refetch the menu after every (re)connect.",
		Example: `
  cartelera kiosk --token <device-jwt>
  cartelera kiosk --server ws://menu.local:8080/ws/local --api http://menu.local:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(
				logger.WithLevel(logLevel),
				logger.WithComponent("kiosk"),
				logger.WithVersion(GetVersion()),
			); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Shutdown() }()
			log := logger.New("kiosk")

			creds := client.NewFileCredentials(credPath)
			if pairToken != "" {
				if err := creds.SetToken(pairToken); err != nil {
					return fmt.Errorf("store pairing token: %w", err)
				}
				log.Info("pairing token stored", zap.String("path", credPath))
			}

			store, err := imagecache.NewDiskStore(filepath.Join(cacheDir, "blobs"))
			if err != nil {
				return fmt.Errorf("open image store: %w", err)
			}
			cache := imagecache.New(imagecache.Options{
				Store:      store,
				Fetcher:    imagecache.NewHTTPFetcher(30 * time.Second),
				ScratchDir: filepath.Join(cacheDir, "scratch"),
				Logger:     log,
			})
			pool := workers.NewWorkerPool(4, 128)
			defer pool.Stop()

			ctx := cmd.Context()
			ch := client.New(client.Options{
				URL:         serverURL,
				Credentials: creds,
				Logger:      log,
			})

			warmMenu := func() {
				token, err := creds.Token()
				if err != nil || token == "" {
					return
				}
				urls, err := fetchMenuImageURLs(ctx, apiURL, token)
				if err != nil {
					log.Warn("menu fetch failed", zap.Error(err))
					return
				}
				log.Info("warming menu images", zap.Int("count", len(urls)))
				cache.Warm(ctx, urls, pool)
			}

			// The welcome frame doubles as the reconcile trigger: every
			// (re)connect refetches the menu, covering events missed offline.
			ch.Subscribe(domain.EventConnected, func(json.RawMessage) { warmMenu() })
			ch.Subscribe(domain.EventMenuUpdated, func(json.RawMessage) { warmMenu() })

			preload := func(payload json.RawMessage) {
				var p struct {
					ImageURL string `json:"imagen_url"`
				}
				if json.Unmarshal(payload, &p) != nil || p.ImageURL == "" {
					return
				}
				url := p.ImageURL
				pool.AddJob(func() { cache.PreloadAndCache(ctx, url) })
			}
			ch.Subscribe(domain.EventProductCreated, preload)
			ch.Subscribe(domain.EventProductUpdated, preload)

			ch.Connect()
			log.Info("kiosk client running",
				zap.String("server", serverURL),
				zap.String("cache_dir", cacheDir))

			<-ctx.Done()
			ch.Disconnect()
			cache.ClearVolatile()
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "ws://localhost:8080/ws/local", "Live update endpoint")
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Catalog API base URL")
	cmd.Flags().StringVar(&credPath, "credentials", filepath.Join(kioskDataDir(), "credentials.json"), "Path to the stored device token")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", filepath.Join(kioskDataDir(), "cache"), "Directory for the persistent image cache")
	cmd.Flags().StringVar(&pairToken, "token", "", "Store this device token before connecting (pairing)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	return cmd
}

func kioskDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cartelera")
	}
	return ".cartelera"
}

// fetchMenuImageURLs pulls the menu read model and collects every product
// image URL for warmup.
func fetchMenuImageURLs(ctx context.Context, apiURL, token string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/menu", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("menu fetch: status %d", resp.StatusCode)
	}

	var menu struct {
		Categories []struct {
			Products []struct {
				ImageURL string `json:"imagen_url"`
			} `json:"productos"`
		} `json:"categorias"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&menu); err != nil {
		return nil, fmt.Errorf("decode menu: %w", err)
	}

	var urls []string
	for _, c := range menu.Categories {
		for _, p := range c.Products {
			if p.ImageURL != "" {
				urls = append(urls, p.ImageURL)
			}
		}
	}
	return urls, nil
}
