package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pandastore/supportbot/internal/config"
	"github.com/pandastore/supportbot/internal/knowledge"
)

func crawlCmd() *cobra.Command {
	var siteURL string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the product site into the knowledge base",
		Long:  "Fetches same-host pages starting from the configured site URL and caches their text for answer grounding.",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCrawl(siteURL); err != nil {
				fmt.Fprintln(os.Stderr, "crawl failed:", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&siteURL, "url", "", "start URL (default: knowledge.site_url from config)")
	return cmd
}

func runCrawl(siteURL string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if siteURL == "" {
		siteURL = cfg.Knowledge.SiteURL
	}
	if siteURL == "" {
		return fmt.Errorf("no site URL: pass --url or set knowledge.site_url")
	}

	base, err := knowledge.Load(cfg.DataDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	crawler := knowledge.NewCrawler(cfg.Knowledge.MaxPages)
	if err := crawler.Crawl(ctx, siteURL, base); err != nil {
		return err
	}

	fmt.Printf("Knowledge base holds %d pages.\n", base.Len())
	return nil
}
