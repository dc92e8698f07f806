package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zen-systems/groundchat/pkg/archive"
	"github.com/zen-systems/groundchat/pkg/catalog"
	"github.com/zen-systems/groundchat/pkg/citation"
	"github.com/zen-systems/groundchat/pkg/conversation"
	"github.com/zen-systems/groundchat/pkg/similarity"
)

func resolveCmd() *cobra.Command {
	var (
		text        string
		catalogPath string
		field       string
		threshold   float64
		method      string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the catalog records a text cites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if catalogPath == "" {
				catalogPath = cfg.DatabasePath()
			}
			if !cmd.Flags().Changed("field") {
				field = cfg.Grounding.CitationField
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Grounding.CitationThreshold
			}

			src, closeSrc, err := openCatalog(catalogPath, 0)
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer closeSrc()

			corpus, err := catalog.Lookup(cmd.Context(), src, catalog.SearchParams{})
			if err != nil {
				return err
			}

			extractor, err := citation.NewExtractor(cfg.Grounding.CitationRegex)
			if err != nil {
				return err
			}
			m, err := similarity.ParseMethod(method)
			if err != nil {
				return err
			}
			resolver, err := citation.NewResolver(
				citation.WithExtractor(extractor),
				citation.WithField(field),
				citation.WithThreshold(threshold),
				citation.WithMethod(m),
			)
			if err != nil {
				return err
			}

			citations := resolver.Resolve(text, corpus)
			if citations == nil {
				citations = []citation.Citation{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(citations)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "text to resolve")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog file (defaults to grounding.database_path)")
	cmd.Flags().StringVar(&field, "field", citation.DefaultField, "record field compared with references")
	cmd.Flags().Float64Var(&threshold, "threshold", citation.DefaultThreshold, "minimum similarity")
	cmd.Flags().StringVar(&method, "method", string(similarity.Ratio), "similarity method for quoted references")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func similarityCmd() *cobra.Command {
	var (
		method        string
		caseSensitive bool
	)

	cmd := &cobra.Command{
		Use:   "similarity [a] [b]",
		Short: "Print the similarity of two strings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := similarity.ParseMethod(method)
			if err != nil {
				return err
			}
			score, err := similarity.Compare(args[0], args[1], m, caseSensitive)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", score)
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", string(similarity.Ratio), "similarity method")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "compare without lowercasing")

	return cmd
}

func botsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bots",
		Short: "List bot variants and whether they are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			models := map[string]string{
				"openai":    cfg.OpenAI.LLMName,
				"openai-fc": cfg.OpenAI.LLMFCName,
				"google":    cfg.Google.ChatLLMName,
				"anthropic": cfg.Anthropic.LLMName,
				"mock":      "-",
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BOT\tMODEL\tSTAGING\tSTATUS")
			for _, name := range botNames {
				status := "not configured"
				if cfg.HasProvider(name) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, models[name], cfg.StagingPolicy(name), status)
			}
			return w.Flush()
		},
	}
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the recommendation catalog",
	}

	var (
		dbPath string
		from   string
		table  string
	)
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load a JSON catalog into a SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			data, err := os.ReadFile(from)
			if err != nil {
				return fmt.Errorf("failed to read catalog: %w", err)
			}
			records, err := catalog.DecodeRecords(data)
			if err != nil {
				return err
			}
			return importRecords(cmd.Context(), dbPath, table, records, cmd)
		},
	}
	importCmd.Flags().StringVar(&dbPath, "db", "catalog.db", "SQLite database file")
	importCmd.Flags().StringVar(&from, "from", "", "JSON catalog to import")
	importCmd.Flags().StringVar(&table, "table", catalog.DefaultTable, "table name")
	_ = importCmd.MarkFlagRequired("from")

	cmd.AddCommand(importCmd)
	return cmd
}

func importRecords(ctx context.Context, dbPath, table string, records []catalog.Record, cmd *cobra.Command) error {
	db, err := catalog.OpenSQLite(dbPath, catalog.WithTable(table))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Import(ctx, records); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records into %s (%s)\n", len(records), dbPath, table)
	return nil
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived chat sessions",
	}

	openStore := func() (*archive.Store, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		return archive.NewStore(filepath.Join(cfg.ConfigDir, "archive"))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived exports, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			return listArchive(cmd.OutOrStdout(), store)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [sha256]",
		Short: "Print an archived export as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			sessions, err := store.LoadSessions(args[0])
			if err != nil {
				return fmt.Errorf("failed to load archive %s: %w", args[0], err)
			}
			return conversation.ExportSessions(cmd.OutOrStdout(), sessions)
		},
	})

	return cmd
}

func listArchive(out io.Writer, store *archive.Store) error {
	refs, err := store.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SHA256\tSESSIONS\tCREATED")
	for _, ref := range refs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", ref.SHA256, ref.Sessions, ref.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
