package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zen-systems/groundchat/pkg/bot"
	"github.com/zen-systems/groundchat/pkg/catalog"
	"github.com/zen-systems/groundchat/pkg/conversation"
)

// farewells end the chat.
var farewells = []string{"tks", "thanks", "bye", "obrigado", "tchau", "valeu", "vlw", "flw"}

func isFarewell(message string) bool {
	word := strings.ToLower(strings.Trim(message, " \t.!?,"))
	return slices.Contains(farewells, word)
}

func chatCmd() *cobra.Command {
	var (
		botFlags   []string
		exportPath string
		toArchive  bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with one or more bots",
		Long: `Starts an interactive chat. Each message is sent to every selected bot
in parallel; replies are printed with their citations. The chat ends on a
farewell (thanks, bye, tchau, ...) or end of input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			src, closeSrc, err := openCatalog(cfg.DatabasePath(), cfg.Grounding.MaxCandidates)
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer closeSrc()

			if fs, ok := src.(*catalog.FileSource); ok && watch {
				events, err := fs.Watch(ctx)
				if err != nil {
					return fmt.Errorf("failed to watch catalog: %w", err)
				}
				go func() {
					for err := range events {
						if err != nil {
							slog.Warn("catalog reload failed", "error", err)
						}
					}
				}()
			}

			names := selectBots(cfg, botFlags)
			adapters, err := createAdapters(ctx, cfg, names)
			if err != nil {
				return err
			}
			bots := make([]*bot.Bot, 0, len(names))
			for _, name := range names {
				b, err := newBot(cfg, adapters[name], src)
				if err != nil {
					return err
				}
				bots = append(bots, b)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Chatting with %s. Say bye to leave.\n", strings.Join(names, ", "))
			runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), bots)

			sessions := make([]*conversation.Session, len(bots))
			for i, b := range bots {
				b.Close()
				sessions[i] = b.Session()
			}
			return saveSessions(cmd, cfg, sessions, exportPath, toArchive)
		},
	}

	cmd.Flags().StringSliceVar(&botFlags, "bot", nil, "bots to chat with (openai, openai-fc, google, anthropic, mock)")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the sessions as JSON to this file")
	cmd.Flags().BoolVar(&toArchive, "archive", false, "store the sessions in the archive")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload a JSON catalog when it changes")

	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, bots []*bot.Bot) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() || ctx.Err() != nil {
			fmt.Fprintln(out)
			return
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if isFarewell(message) {
			return
		}
		for i, ex := range bot.ChatAll(ctx, bots, message) {
			printExchange(out, bots[i].Name(), ex)
		}
	}
}

func printExchange(w io.Writer, name string, ex bot.Exchange) {
	fmt.Fprintf(w, "[%s] (%.1fs)\n%s\n", name, ex.Elapsed.Seconds(), ex.Reply)
	for _, c := range ex.Citations {
		fmt.Fprintf(w, "  cites #%d %s (%s, %.2f)\n", c.Index, c.Record, c.Provenance, c.Score)
	}
}
