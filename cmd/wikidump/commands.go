package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wikidump/internal/catalog"
	"wikidump/internal/checksum"
	"wikidump/internal/config"
	"wikidump/internal/domain"
	"wikidump/internal/download"
	"wikidump/internal/language"
	"wikidump/internal/pipeline"
	"wikidump/internal/resolver"
)

// buildPipeline wires the resolver, downloader and catalog together.
// The returned closer releases the catalog handle.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline.Pipeline, func(), error) {
	preference := make([]domain.Algo, 0, len(cfg.Download.ChecksumPreference))
	for _, name := range cfg.Download.ChecksumPreference {
		algo, err := checksum.ParseAlgo(name)
		if err != nil {
			return nil, nil, err
		}
		preference = append(preference, algo)
	}

	res := resolver.New(http.DefaultClient, cfg.Index.IndexURL, cfg.Index.BaseURL, logger)
	dl := download.New(http.DefaultClient, cfg.Download.IdleTimeout,
		cfg.Download.ProgressInterval, preference, logger)

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(res, dl, cat, cfg.Download.DataDir, logger)
	return p, func() { _ = cat.Close() }, nil
}

// languageFromFlags resolves the --language / --abbr pair the same way
// for the download and run commands.
func languageFromFlags(name, abbr string) (language.Code, error) {
	switch {
	case name != "" && abbr != "":
		return "", fmt.Errorf("specify either --language or --abbr, not both")
	case name != "":
		return language.FromEnglishName(name)
	case abbr != "":
		return language.FromAbbreviation(abbr)
	default:
		return "", fmt.Errorf("no language specified: use --language or --abbr")
	}
}

func languagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the languages the dump site publishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			res := resolver.New(http.DefaultClient, cfg.Index.IndexURL, cfg.Index.BaseURL, logger)
			codes, err := res.Languages(cmd.Context())
			if err != nil {
				return err
			}
			for _, code := range codes {
				fmt.Printf("%s\t%s\n", code, code.EnglishName())
			}
			return nil
		},
	}
}

func downloadCommand() *cobra.Command {
	var name, abbr, notOlderThan string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and verify the latest complete dump for a language",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			code, err := languageFromFlags(name, abbr)
			if err != nil {
				return err
			}

			p, closer, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer closer()

			path, err := p.Download(cmd.Context(), pipeline.Options{
				Language:     code,
				NotOlderThan: notOlderThan,
			})
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "language", "", "English language name, e.g. German")
	cmd.Flags().StringVar(&abbr, "abbr", "", "site abbreviation, e.g. de")
	cmd.Flags().StringVar(&notOlderThan, "not-older-than", "", "minimum acceptable dump date (YYYYMMDD)")
	return cmd
}

func parseCommand() *cobra.Command {
	var input, output string
	var limit int64

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Extract records from a local dump file into JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			w, err := newRecordWriter(output)
			if err != nil {
				return err
			}
			defer w.Close()

			// Parse needs no resolver, downloader or catalog.
			p := pipeline.New(nil, nil, nil, cfg.Download.DataDir, logger)
			return p.Parse(cmd.Context(), input, limitHandler(w.Write, limit))
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "local .xml.bz2 dump file")
	cmd.Flags().StringVar(&output, "output", "", "output .jsonl file (default stdout)")
	cmd.Flags().Int64Var(&limit, "limit", 0, "stop after this many records (0 for all)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runCommand() *cobra.Command {
	var name, abbr, notOlderThan, output string
	var limit int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve, download, verify and extract in one go",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			code, err := languageFromFlags(name, abbr)
			if err != nil {
				return err
			}

			p, closer, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer closer()

			w, err := newRecordWriter(output)
			if err != nil {
				return err
			}
			defer w.Close()

			return p.Run(cmd.Context(), pipeline.Options{
				Language:     code,
				NotOlderThan: notOlderThan,
			}, limitHandler(w.Write, limit))
		},
	}
	cmd.Flags().StringVar(&name, "language", "", "English language name, e.g. German")
	cmd.Flags().StringVar(&abbr, "abbr", "", "site abbreviation, e.g. de")
	cmd.Flags().StringVar(&notOlderThan, "not-older-than", "", "minimum acceptable dump date (YYYYMMDD)")
	cmd.Flags().StringVar(&output, "output", "", "output .jsonl file (default stdout)")
	cmd.Flags().Int64Var(&limit, "limit", 0, "stop after this many records (0 for all)")
	return cmd
}

// limitHandler stops the stream cleanly after n records.
func limitHandler(h pipeline.Handler, n int64) pipeline.Handler {
	if n <= 0 {
		return h
	}
	var seen int64
	return func(rec *domain.Record) error {
		if err := h(rec); err != nil {
			return err
		}
		seen++
		if seen >= n {
			return pipeline.ErrStop
		}
		return nil
	}
}
