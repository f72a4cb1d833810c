package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/letmevibethatforyou/iipsearch"
	"github.com/letmevibethatforyou/iipsearch/algolia"
	"github.com/letmevibethatforyou/iipsearch/catalog"
	"github.com/letmevibethatforyou/iipsearch/internal/ddb"
	"github.com/letmevibethatforyou/iipsearch/internal/metrics"
	"github.com/letmevibethatforyou/iipsearch/solr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"
)

const (
	defaultTimeout = 5 * time.Second
	defaultSolrURL = "http://localhost:8983/solr/iip"
	defaultBiblio  = "http://localhost:8983/solr/biblio"
)

func main() {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	app := &cli.App{
		Name:  "query",
		Usage: "Search the inscription catalog the way the public search page does",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Search backend: solr or algolia",
				EnvVars: []string{"IIP_BACKEND"},
				Value:   "solr",
			},
			&cli.StringFlag{
				Name:    "solr-url",
				Usage:   "Base URL of the inscription Solr core",
				EnvVars: []string{"IIP_SOLR_URL"},
				Value:   defaultSolrURL,
			},
			&cli.StringFlag{
				Name:    "biblio-url",
				Usage:   "Base URL of the bibliography Solr core",
				EnvVars: []string{"IIP_BIBLIO_URL"},
				Value:   defaultBiblio,
			},
			&cli.StringFlag{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "Algolia inscription index name",
				EnvVars: []string{"ALGOLIA_INDEX"},
				Value:   ddb.InscriptionIndex,
			},
			&cli.StringFlag{
				Name:    "biblio-index",
				Usage:   "Algolia bibliography index name",
				EnvVars: []string{"ALGOLIA_BIBLIO_INDEX"},
				Value:   ddb.BibliographyIndex,
			},
			&cli.StringFlag{
				Name:    "algolia-secret-arn",
				Usage:   "ARN of AWS Secrets Manager secret containing Algolia credentials",
				EnvVars: []string{"ALGOLIA_SECRET_ARN"},
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Query string to search for; positional arg is a fallback",
			},
			&cli.IntFlag{
				Name:    "page",
				Aliases: []string{"p"},
				Usage:   "Result page to return, starting at 1",
				Value:   1,
			},
			&cli.BoolFlag{
				Name:  "authorized",
				Usage: "Search as an authorized user and include unapproved inscriptions",
			},
			&cli.StringFlag{
				Name:  "enrich-field",
				Usage: "Hit field holding encoded bibliography entries to look up; empty disables",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for the whole search",
				Value: defaultTimeout,
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Print collected metrics to stderr after the search",
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func runAction(c *cli.Context) error {
	ctx := c.Context

	query := strings.TrimSpace(c.String("query"))
	if query == "" && c.NArg() > 0 {
		query = strings.TrimSpace(c.Args().First())
	}

	page := c.Int("page")
	if page <= 0 {
		slog.WarnContext(ctx, "page must be positive; using page 1", "page", page)
		page = 1
	}

	timeout := c.Duration("timeout")
	if timeout <= 0 {
		slog.WarnContext(ctx, "timeout must be positive; using default", "timeout", timeout, "default", defaultTimeout)
		timeout = defaultTimeout
	}

	searcher, biblio, err := buildSearchers(c)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	cat := catalog.New(searcher, biblio, catalog.WithRecorder(metrics.New(registry)))

	session := catalog.NewMapSession(map[string]any{catalog.AuthorizedKey: c.Bool("authorized")})

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.InfoContext(ctx, "executing catalog search",
		"backend", c.String("backend"),
		"query", query,
		"page", page,
		"authorized", c.Bool("authorized"),
		"timeout", timeout,
	)

	resp, err := cat.Search(ctx, catalog.NewSearchRequest(query, page, session))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var enrichment *catalog.Enrichment
	if field := c.String("enrich-field"); field != "" {
		enrichment, err = cat.Enrich(ctx, resp.Page.Items, field)
		if err != nil {
			return fmt.Errorf("bibliography lookup failed: %w", err)
		}
	}

	if err := printResponse(resp, enrichment); err != nil {
		return fmt.Errorf("failed to serialize results: %w", err)
	}

	if c.Bool("metrics") {
		return printMetrics(registry)
	}
	return nil
}

func buildSearchers(c *cli.Context) (iipsearch.Searcher, iipsearch.Searcher, error) {
	switch backend := c.String("backend"); backend {
	case "solr":
		return solr.NewSearcher(c.String("solr-url")), solr.NewSearcher(c.String("biblio-url")), nil

	case "algolia":
		var fetchSecrets algolia.FetchSecrets
		if secretArn := strings.TrimSpace(c.String("algolia-secret-arn")); secretArn != "" {
			slog.InfoContext(c.Context, "using AWS Secrets Manager for Algolia credentials", "secret_arn", secretArn)
			cfg, err := config.LoadDefaultConfig(c.Context)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
			}
			fetchSecrets = algolia.AWSSecrets(c.Context, secretsmanager.NewFromConfig(cfg), secretArn)
		} else {
			fetchSecrets = algolia.EnvSecrets()
		}

		client := algolia.NewClient(fetchSecrets)
		return algolia.NewSearcher(client, c.String("index")), algolia.NewSearcher(client, c.String("biblio-index")), nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func printResponse(resp *catalog.Response, enrichment *catalog.Enrichment) error {
	payload := struct {
		*catalog.Response
		Bibliography *catalog.Enrichment `json:"bibliography,omitempty"`
	}{
		Response:     resp,
		Bibliography: enrichment,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

func printMetrics(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(os.Stderr, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return nil
}
