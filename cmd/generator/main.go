package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/letmevibethatforyou/iipsearch/internal/ddb"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

type place struct {
	City   string
	Region string
}

var (
	places = []place{
		{"Akko", "Galilee"},
		{"Caesarea", "Coastal Plain"},
		{"Jerusalem", "Judaea"},
		{"Beth Shean", "Jordan Valley"},
		{"Sepphoris", "Galilee"},
		{"Jaffa", "Coastal Plain"},
		{"Masada", "Judaean Desert"},
	}

	inscriptionTypes = []string{"funerary", "dedicatory", "honorific", "label", "prayer"}
	physicalTypes    = []string{"ossuary", "stele", "mosaic", "lintel", "sarcophagus", "column"}
	languages        = []string{"Greek", "Hebrew", "Aramaic", "Latin"}
	religions        = []string{"Jewish", "Christian", "Pagan", "Samaritan"}
	citationTypes    = []string{"page", "insc", "volume"}
	authors          = []string{"Cotton", "Naveh", "Roth-Gerson", "Lifshitz", "Ameling", "Ecker"}
)

type biblio struct {
	BiblioID string
	Item     ddb.Item
}

func generateBiblio(n int) biblio {
	biblioID := fmt.Sprintf("IIP-%03d", n)
	author := authors[rand.IntN(len(authors))]
	return biblio{
		BiblioID: biblioID,
		Item: ddb.Item{
			ID:        ksuid.New().String(),
			IndexName: ddb.BibliographyIndex,
			Object: map[string]any{
				"biblioId": biblioID,
				"author":   author,
				"title":    fmt.Sprintf("Corpus of Inscriptions, vol. %d", rand.IntN(9)+1),
				"year":     rand.IntN(60) + 1960,
			},
		},
	}
}

func generateInscription(n int, bibliography []biblio) ddb.Item {
	p := places[rand.IntN(len(places))]
	notBefore := rand.IntN(900) - 300
	notAfter := notBefore + rand.IntN(150)

	status := "approved"
	if rand.IntN(5) == 0 {
		status = "to_approve"
	}

	var bibl []string
	for range rand.IntN(3) {
		b := bibliography[rand.IntN(len(bibliography))]
		bibl = append(bibl, fmt.Sprintf("bibl=%s|nType=%s|n=%d",
			b.BiblioID, citationTypes[rand.IntN(len(citationTypes))], rand.IntN(400)+1))
	}

	prefix := strings.ToLower(strings.ReplaceAll(p.City, " ", ""))
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}

	return ddb.Item{
		ID:        fmt.Sprintf("%s%04d", prefix, n),
		IndexName: ddb.InscriptionIndex,
		Object: map[string]any{
			"city":           p.City,
			"region":         p.Region,
			"type":           inscriptionTypes[rand.IntN(len(inscriptionTypes))],
			"physical_type":  physicalTypes[rand.IntN(len(physicalTypes))],
			"language":       languages[rand.IntN(len(languages))],
			"religion":       religions[rand.IntN(len(religions))],
			"notBefore":      notBefore,
			"notAfter":       notAfter,
			"display_status": status,
			"bibl":           bibl,
		},
	}
}

func putItem(ctx context.Context, client *dynamodb.Client, tableName string, item ddb.Item) error {
	av, err := ddb.MarshalItem(item)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", item.IndexName, err)
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item in DynamoDB: %w", err)
	}

	slog.InfoContext(ctx, "Successfully inserted record", "id", item.ID, "index", item.IndexName)
	return nil
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	env := c.String("env")
	tableName := c.String("table-name")
	count := c.Int("count")
	biblioCount := c.Int("biblio-count")
	if biblioCount <= 0 {
		return fmt.Errorf("biblio-count must be positive, got %d", biblioCount)
	}

	slog.InfoContext(ctx, "Starting catalog generator",
		"environment", env,
		"table", tableName,
		"count", count,
		"biblio_count", biblioCount,
	)

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg)

	bibliography := make([]biblio, 0, biblioCount)
	for i := range biblioCount {
		b := generateBiblio(i + 1)
		if err := putItem(ctx, client, tableName, b.Item); err != nil {
			return fmt.Errorf("failed to insert bibliography record %d: %w", i+1, err)
		}
		bibliography = append(bibliography, b)
	}

	for i := range count {
		if err := putItem(ctx, client, tableName, generateInscription(i+1, bibliography)); err != nil {
			return fmt.Errorf("failed to insert inscription %d: %w", i+1, err)
		}
	}

	slog.InfoContext(ctx, "Successfully generated and inserted all records", "inscriptions", count, "bibliography", biblioCount)
	return nil
}

func main() {
	// Configure JSON logging for AWS environments
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	app := &cli.App{
		Name:  "generator",
		Usage: "Generate sample inscriptions and bibliography and insert into DynamoDB",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Environment name",
				EnvVars:  []string{"ENVIRONMENT"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "table-name",
				Aliases:  []string{"t"},
				Usage:    "DynamoDB table name",
				EnvVars:  []string{"TABLE_NAME"},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "Number of inscriptions to generate",
				Value:   1,
			},
			&cli.IntFlag{
				Name:  "biblio-count",
				Usage: "Number of bibliography records the inscriptions cite",
				Value: 5,
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}
