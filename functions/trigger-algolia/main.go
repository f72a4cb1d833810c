package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/letmevibethatforyou/iipsearch/algolia"
	"github.com/letmevibethatforyou/iipsearch/catalog"
	"github.com/letmevibethatforyou/iipsearch/internal/ddb"
	"github.com/urfave/cli/v2"
)

// indexWriter is the part of *algolia.Client the handler needs.
type indexWriter interface {
	SaveObjects(ctx context.Context, indexName string, objects []map[string]interface{}) error
	DeleteObjects(ctx context.Context, indexName string, objectIDs []string) error
}

type Handler struct {
	writer           indexWriter
	inscriptionIndex string
	biblioField      string
}

func NewHandler(writer indexWriter, inscriptionIndex, biblioField string) *Handler {
	return &Handler{
		writer:           writer,
		inscriptionIndex: inscriptionIndex,
		biblioField:      biblioField,
	}
}

// batch collects consecutive stream records of one operation on one index.
// Records are flushed in stream order, so a delete never overtakes an
// earlier save of the same object.
type batch struct {
	remove    bool
	indexName string
	objects   []map[string]interface{}
	objectIDs []string
}

func (b *batch) matches(remove bool, indexName string) bool {
	return b.indexName != "" && b.remove == remove && b.indexName == indexName
}

func (h *Handler) HandleDynamoDBEvent(ctx context.Context, e ddb.DynamoDBEvent) error {
	slog.InfoContext(ctx, "Processing DynamoDB stream records", "record_count", len(e.Records))

	var pending batch
	flush := func() error {
		if pending.indexName == "" {
			return nil
		}
		b := pending
		pending = batch{}
		if b.remove {
			slog.InfoContext(ctx, "Deleting objects from Algolia", "index", b.indexName, "count", len(b.objectIDs))
			return h.writer.DeleteObjects(ctx, b.indexName, b.objectIDs)
		}
		slog.InfoContext(ctx, "Saving objects to Algolia", "index", b.indexName, "count", len(b.objects))
		return h.writer.SaveObjects(ctx, b.indexName, b.objects)
	}

	for _, record := range e.Records {
		item, remove, ok := h.parseRecord(ctx, record)
		if !ok {
			continue
		}
		if !pending.matches(remove, item.IndexName) {
			if err := flush(); err != nil {
				slog.ErrorContext(ctx, "Error syncing batch", "error", err)
				return err
			}
			pending = batch{remove: remove, indexName: item.IndexName}
		}
		if remove {
			pending.objectIDs = append(pending.objectIDs, item.ID)
		} else {
			pending.objects = append(pending.objects, item.SearchObject())
		}
	}

	if err := flush(); err != nil {
		slog.ErrorContext(ctx, "Error syncing batch", "error", err)
		return err
	}
	return nil
}

// parseRecord extracts the item a stream record changes. ok is false for
// records that are skipped.
func (h *Handler) parseRecord(ctx context.Context, record ddb.DynamoDBEventRecord) (item ddb.Item, remove bool, ok bool) {
	switch ddb.DynamoDBOperationType(record.EventName) {
	case ddb.DynamoDBOperationTypeInsert, ddb.DynamoDBOperationTypeModify:
		if record.Change.NewImage == nil {
			slog.WarnContext(ctx, "No new image for insert/modify operation, skipping record", "event_id", record.EventID)
			return ddb.Item{}, false, false
		}

		item, err := ddb.UnmarshalItem(record.Change.NewImage)
		if err != nil {
			slog.WarnContext(ctx, "Failed to unmarshal item, skipping", "event_id", record.EventID, "error", err)
			return ddb.Item{}, false, false
		}

		if item.ID == "" || item.IndexName == "" {
			slog.WarnContext(ctx, "Missing pk or sk in item, skipping record", "event_id", record.EventID)
			return ddb.Item{}, false, false
		}
		if item.Object == nil {
			slog.WarnContext(ctx, "Missing object in item, skipping record", "id", item.ID, "index", item.IndexName)
			return ddb.Item{}, false, false
		}
		if err := h.validate(item); err != nil {
			slog.WarnContext(ctx, "Invalid catalog item, skipping record", "id", item.ID, "index", item.IndexName, "error", err)
			return ddb.Item{}, false, false
		}
		return item, false, true

	case ddb.DynamoDBOperationTypeRemove:
		item, err := ddb.UnmarshalItem(record.Change.Keys)
		if err != nil {
			slog.WarnContext(ctx, "Failed to unmarshal keys for delete operation, skipping", "event_id", record.EventID, "error", err)
			return ddb.Item{}, false, false
		}
		if item.ID == "" || item.IndexName == "" {
			slog.WarnContext(ctx, "Missing pk or sk in delete record, skipping record", "event_id", record.EventID)
			return ddb.Item{}, false, false
		}
		return item, true, true

	default:
		slog.InfoContext(ctx, "Ignoring event type", "event_type", record.EventName)
		return ddb.Item{}, false, false
	}
}

// validate rejects inscriptions whose bibliography entries would break the
// join to the bibliography index.
func (h *Handler) validate(item ddb.Item) error {
	if item.IndexName != h.inscriptionIndex {
		return nil
	}

	raw, ok := item.Object[h.biblioField]
	if !ok || raw == nil {
		return nil
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return fmt.Errorf("%s is %T, not a list", h.biblioField, raw)
	}
	for _, e := range entries {
		s, ok := e.(string)
		if !ok {
			return fmt.Errorf("%s entry %v is %T, not a string", h.biblioField, e, e)
		}
		if _, err := catalog.ParseEncodedEntry(s); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	app := &cli.App{
		Name:  "iip-algolia-sync",
		Usage: "Sync catalog changes from a DynamoDB stream to Algolia",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "table-name",
				Usage:    "DynamoDB table name to sync from",
				EnvVars:  []string{"TABLE_NAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name; reads credentials from the <env>/iip-algolia secret",
				EnvVars: []string{"ENV", "ENVIRONMENT"},
			},
			&cli.StringFlag{
				Name:    "algolia-secret-arn",
				Usage:   "ARN of the Secrets Manager secret holding Algolia credentials (overrides --env)",
				EnvVars: []string{"ALGOLIA_SECRET_ARN"},
			},
			&cli.StringFlag{
				Name:    "algolia-app-id",
				Usage:   "Algolia application ID",
				EnvVars: []string{"ALGOLIA_APP_ID"},
			},
			&cli.StringFlag{
				Name:    "algolia-api-key",
				Usage:   "Algolia API key",
				EnvVars: []string{"ALGOLIA_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "inscription-index",
				Usage:   "Index whose items carry bibliography entries to validate",
				EnvVars: []string{"INSCRIPTION_INDEX"},
				Value:   ddb.InscriptionIndex,
			},
			&cli.StringFlag{
				Name:    "biblio-field",
				Usage:   "Inscription field holding encoded bibliography entries",
				EnvVars: []string{"BIBLIO_FIELD"},
				Value:   "bibl",
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
	tableName := c.String("table-name")
	env := c.String("env")
	secretArn := c.String("algolia-secret-arn")
	algoliaAppID := c.String("algolia-app-id")
	algoliaAPIKey := c.String("algolia-api-key")

	slog.InfoContext(ctx, "Starting DynamoDB to Algolia sync", "table", tableName, "environment", env)

	var fetchSecrets algolia.FetchSecrets
	switch {
	case secretArn != "" || env != "":
		secretID := secretArn
		if secretID == "" {
			secretID = algolia.SecretPath(env)
		}
		slog.InfoContext(ctx, "Using AWS Secrets Manager for credentials", "secret", secretID)

		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load AWS config", "error", err)
			return err
		}
		fetchSecrets = algolia.AWSSecrets(ctx, secretsmanager.NewFromConfig(cfg), secretID)
	case algoliaAppID != "" && algoliaAPIKey != "":
		slog.InfoContext(ctx, "Using static credentials from flags")
		fetchSecrets = algolia.StaticSecrets(algoliaAppID, algoliaAPIKey)
	default:
		slog.InfoContext(ctx, "Using environment variables for credentials")
		fetchSecrets = algolia.EnvSecrets()
	}

	handler := NewHandler(algolia.NewClient(fetchSecrets), c.String("inscription-index"), c.String("biblio-field"))

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		slog.InfoContext(ctx, "Running in Lambda environment")
		lambda.Start(handler.HandleDynamoDBEvent)
	} else {
		slog.InfoContext(ctx, "Function cannot run outside of AWS Lambda environment")
	}

	return nil
}
