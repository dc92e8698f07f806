package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zen-systems/groundchat/pkg/bot"
	"github.com/zen-systems/groundchat/pkg/conversation"
)

func simulateCmd() *cobra.Command {
	var (
		file      string
		botName   string
		outPath   string
		parallel  int
		toArchive bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay scripted users against a bot",
		Long: `Reads a semicolon separated CSV with the header user_id;user_message and
plays every user's messages, in order, against a fresh session of the bot.
Users run in parallel. The sessions are written as JSON to --out (stdout
by default).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open simulations: %w", err)
			}
			scripts, err := readScripts(f)
			f.Close()
			if err != nil {
				return err
			}

			src, closeSrc, err := openCatalog(cfg.DatabasePath(), cfg.Grounding.MaxCandidates)
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer closeSrc()

			adapters, err := createAdapters(cmd.Context(), cfg, []string{botName})
			if err != nil {
				return err
			}
			a := adapters[botName]

			bots, err := bot.Simulate(cmd.Context(), scripts, parallel, func(bot.Script) (*bot.Bot, error) {
				return newBot(cfg, a, src)
			})
			if err != nil {
				return err
			}

			sessions := make([]*conversation.Session, len(bots))
			for i, b := range bots {
				sessions[i] = b.Session()
			}
			if outPath == "" {
				if err := conversation.ExportSessions(cmd.OutOrStdout(), sessions); err != nil {
					return err
				}
			}
			return saveSessions(cmd, cfg, sessions, outPath, toArchive)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "CSV file with user_id;user_message rows")
	cmd.Flags().StringVar(&botName, "bot", "mock", "bot to simulate against")
	cmd.Flags().StringVar(&outPath, "out", "", "write the sessions as JSON to this file")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "max users simulated at once (0 for no limit)")
	cmd.Flags().BoolVar(&toArchive, "archive", false, "store the sessions in the archive")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// readScripts groups the CSV rows by user id in order of first
// appearance. Rows with an empty cell are dropped.
func readScripts(r io.Reader) ([]bot.Script, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read simulations: %w", err)
	}
	userCol, msgCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case "user_id":
			userCol = i
		case "user_message":
			msgCol = i
		}
	}
	if userCol < 0 || msgCol < 0 {
		return nil, fmt.Errorf("simulations header must contain user_id and user_message, got %q", header)
	}

	var scripts []bot.Script
	index := make(map[string]int)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read simulations: %w", err)
		}
		if len(row) <= userCol || len(row) <= msgCol {
			continue
		}
		user := strings.TrimSpace(row[userCol])
		message := strings.TrimSpace(row[msgCol])
		if user == "" || message == "" {
			continue
		}
		i, ok := index[user]
		if !ok {
			i = len(scripts)
			index[user] = i
			scripts = append(scripts, bot.Script{UserID: user})
		}
		scripts[i].Messages = append(scripts[i].Messages, message)
	}
	return scripts, nil
}
