package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/pandastore/supportbot/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		Long:  "Walks through channel credentials, the completion backend and payments, then writes the config file.",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runOnboard(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Setup aborted.")
					return
				}
				fmt.Fprintln(os.Stderr, "setup failed:", err)
				os.Exit(1)
			}
		},
	}
}

func runOnboard() error {
	cfg := config.Default()

	var (
		channel      string
		token        string
		staffID      string
		apiKey       string
		apiBase      string
		model        = cfg.Provider.Model
		merchantKey  string
		siteURL      string
		enableDigest = true
	)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Staff workspace channel").
				Description("Where your team sees customer threads.").
				Options(
					huh.NewOption("Telegram (supergroup with forum topics)", "telegram"),
					huh.NewOption("Discord (threads under a staff channel)", "discord"),
				).
				Value(&channel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Validate(required("bot token")).
				Value(&token),
			huh.NewInput().
				Title("Staff group / channel ID").
				Description("Telegram: numeric supergroup ID. Discord: channel ID.").
				Validate(required("staff workspace ID")).
				Value(&staffID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Completion API key").
				Validate(required("API key")).
				Value(&apiKey),
			huh.NewInput().
				Title("API base URL").
				Description("Leave empty for api.openai.com; any compatible endpoint works.").
				Value(&apiBase),
			huh.NewInput().
				Title("Model").
				Value(&model),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OxaPay merchant key").
				Description("Leave empty to disable payments.").
				Value(&merchantKey),
			huh.NewInput().
				Title("Product site URL").
				Description("Crawled for answer grounding; leave empty to skip.").
				Value(&siteURL),
			huh.NewConfirm().
				Title("Post a daily staff digest?").
				Value(&enableDigest),
		),
	).Run()
	if err != nil {
		return err
	}

	switch channel {
	case "telegram":
		groupID, err := strconv.ParseInt(strings.TrimSpace(staffID), 10, 64)
		if err != nil {
			return fmt.Errorf("telegram staff group ID must be numeric: %w", err)
		}
		cfg.Channels.Telegram = config.TelegramConfig{
			Enabled: true, Token: token, StaffGroupID: groupID,
		}
	case "discord":
		cfg.Channels.Discord = config.DiscordConfig{
			Enabled: true, Token: token, StaffChannelID: strings.TrimSpace(staffID),
		}
	}

	cfg.Provider.APIKey = apiKey
	cfg.Provider.APIBase = strings.TrimSpace(apiBase)
	cfg.Provider.Model = model
	if merchantKey != "" {
		cfg.Payments = config.PaymentsConfig{Enabled: true, MerchantKey: merchantKey}
	}
	cfg.Knowledge.SiteURL = strings.TrimSpace(siteURL)
	cfg.Digest.Enabled = enableDigest

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := resolveConfigPath()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return err
	}

	fmt.Printf("Wrote %s.\n", path)
	if cfg.Knowledge.SiteURL != "" {
		fmt.Println("Run `supportbot crawl` to build the knowledge base, then `supportbot serve`.")
	} else {
		fmt.Println("Run `supportbot serve` to start the bot.")
	}
	return nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(what + " is required")
		}
		return nil
	}
}
