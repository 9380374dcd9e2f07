package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/kth-research-assistant/internal/bootstrap"
	"github.com/kirillkom/kth-research-assistant/internal/config"
	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/core/usecase"
	"github.com/kirillkom/kth-research-assistant/internal/observability/logging"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ragctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragctl",
		Usage: "Inspect the KTH research retrieval pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file loaded before reading the environment",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			return config.LoadDotEnv(c.String("env-file"))
		},
		Commands: []*cli.Command{
			{
				Name:      "keywords",
				Usage:     "Print the keywords extracted from text",
				ArgsUsage: "<text>",
				Action:    keywordsCommand,
			},
			{
				Name:      "search",
				Usage:     "Run the hybrid ranking pipeline against the corpus",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of documents (0 uses SEARCH_DEFAULT_LIMIT)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum fused score",
						Value: 0.45,
					},
				},
			},
			{
				Name:      "normalize",
				Usage:     "Spell-correct and classify a message",
				ArgsUsage: "<text>",
				Action:    normalizeCommand,
			},
		},
	}
}

func textArg(c *cli.Context) (string, error) {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return "", cli.Exit("text argument is required", 2)
	}
	return text, nil
}

func newLogger(c *cli.Context) *slog.Logger {
	return logging.New(c.App.ErrWriter, "ragctl", c.String("log-level"))
}

func keywordsCommand(c *cli.Context) error {
	text, err := textArg(c)
	if err != nil {
		return err
	}
	terms, err := bootstrap.LoadTermIndex(config.Load())
	if err != nil {
		return err
	}
	return printJSON(c, usecase.NewKeywordExtractor(terms).Extract(text))
}

func searchCommand(c *cli.Context) error {
	query, err := textArg(c)
	if err != nil {
		return err
	}
	app, err := bootstrap.New(c.Context, config.Load(), bootstrap.Options{Logger: newLogger(c)})
	if err != nil {
		return err
	}
	defer app.Close()

	docs, err := app.Search.Search(c.Context, domain.SearchRequest{
		Query:     query,
		Limit:     c.Int("limit"),
		Threshold: c.Float64("threshold"),
	})
	if err != nil {
		return err
	}
	for i, doc := range docs {
		fmt.Fprintf(c.App.Writer, "%2d. %.3f (v=%.3f k=%.3f) %s\n", i+1, doc.Similarity, doc.VectorScore, doc.KeywordScore, doc.Title)
		if doc.URL != "" {
			fmt.Fprintf(c.App.Writer, "    %s\n", doc.URL)
		}
	}
	if len(docs) == 0 {
		fmt.Fprintln(c.App.Writer, "no documents above threshold")
	}
	return nil
}

func normalizeCommand(c *cli.Context) error {
	text, err := textArg(c)
	if err != nil {
		return err
	}
	app, err := bootstrap.New(c.Context, config.Load(), bootstrap.Options{Logger: newLogger(c)})
	if err != nil {
		return err
	}
	defer app.Close()

	q, err := app.Normalizer.Normalize(c.Context, text, nil)
	if err != nil {
		return err
	}
	return printJSON(c, q)
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
