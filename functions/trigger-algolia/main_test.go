package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/letmevibethatforyou/iipsearch/internal/ddb"
)

type call struct {
	op    string
	index string
	ids   []string
}

type fakeWriter struct {
	calls  []call
	failOn string
}

func (w *fakeWriter) SaveObjects(ctx context.Context, indexName string, objects []map[string]interface{}) error {
	ids := make([]string, 0, len(objects))
	for _, obj := range objects {
		ids = append(ids, obj["objectID"].(string))
	}
	w.calls = append(w.calls, call{op: "save", index: indexName, ids: ids})
	if w.failOn == "save" {
		return errors.New("algolia unavailable")
	}
	return nil
}

func (w *fakeWriter) DeleteObjects(ctx context.Context, indexName string, objectIDs []string) error {
	w.calls = append(w.calls, call{op: "delete", index: indexName, ids: objectIDs})
	if w.failOn == "delete" {
		return errors.New("algolia unavailable")
	}
	return nil
}

func upsert(name, id, index, object string) string {
	return fmt.Sprintf(`{
		"eventID": %q,
		"eventName": %q,
		"dynamodb": {
			"Keys": {"pk": {"S": %q}, "sk": {"S": %q}},
			"NewImage": {"pk": {"S": %q}, "sk": {"S": %q}, "object": {"M": %s}},
			"SequenceNumber": "1", "SizeBytes": 1, "StreamViewType": "NEW_IMAGE"
		}
	}`, id, name, id, index, id, index, object)
}

func remove(id, index string) string {
	return fmt.Sprintf(`{
		"eventID": %q,
		"eventName": "REMOVE",
		"dynamodb": {
			"Keys": {"pk": {"S": %q}, "sk": {"S": %q}},
			"SequenceNumber": "1", "SizeBytes": 1, "StreamViewType": "KEYS_ONLY"
		}
	}`, id, id, index)
}

func decodeEvent(t *testing.T, records ...string) ddb.DynamoDBEvent {
	t.Helper()
	var e ddb.DynamoDBEvent
	data := `{"Records": [` + strings.Join(records, ",") + `]}`
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	return e
}

const (
	validBibl   = `{"city": {"S": "Akko"}, "bibl": {"L": [{"S": "bibl=IIP001|nType=page|n=12"}]}}`
	invalidBibl = `{"city": {"S": "Akko"}, "bibl": {"L": [{"S": "bibl=IIP001|page"}]}}`
	biblioItem  = `{"biblioId": {"S": "IIP001"}, "title": {"S": "CIIP"}}`
)

func TestHandleDynamoDBEvent(t *testing.T) {
	tests := map[string]struct {
		records  []string
		expected []call
	}{
		"batches_consecutive_saves": {
			records: []string{
				upsert("INSERT", "akko0001", "iip", validBibl),
				upsert("MODIFY", "akko0002", "iip", validBibl),
			},
			expected: []call{{op: "save", index: "iip", ids: []string{"akko0001", "akko0002"}}},
		},
		"keeps_stream_order": {
			records: []string{
				upsert("INSERT", "akko0001", "iip", validBibl),
				remove("akko0001", "iip"),
				upsert("INSERT", "akko0001", "iip", validBibl),
			},
			expected: []call{
				{op: "save", index: "iip", ids: []string{"akko0001"}},
				{op: "delete", index: "iip", ids: []string{"akko0001"}},
				{op: "save", index: "iip", ids: []string{"akko0001"}},
			},
		},
		"splits_by_index": {
			records: []string{
				upsert("INSERT", "akko0001", "iip", validBibl),
				upsert("INSERT", "2ZqA8rVbVfOiBdPfJ8nE1kGzHkO", "iip-biblio", biblioItem),
				remove("IIP009", "iip-biblio"),
				remove("IIP010", "iip-biblio"),
			},
			expected: []call{
				{op: "save", index: "iip", ids: []string{"akko0001"}},
				{op: "save", index: "iip-biblio", ids: []string{"2ZqA8rVbVfOiBdPfJ8nE1kGzHkO"}},
				{op: "delete", index: "iip-biblio", ids: []string{"IIP009", "IIP010"}},
			},
		},
		"skips_invalid_bibliography": {
			records: []string{
				upsert("INSERT", "akko0001", "iip", invalidBibl),
				upsert("INSERT", "akko0002", "iip", validBibl),
			},
			expected: []call{{op: "save", index: "iip", ids: []string{"akko0002"}}},
		},
		"bibliography_index_not_validated": {
			records: []string{
				upsert("INSERT", "b1", "iip-biblio", invalidBibl),
			},
			expected: []call{{op: "save", index: "iip-biblio", ids: []string{"b1"}}},
		},
		"skips_incomplete_records": {
			records: []string{
				`{"eventName": "INSERT", "dynamodb": {"Keys": {"pk": {"S": "x"}}, "SequenceNumber": "1", "SizeBytes": 1, "StreamViewType": "KEYS_ONLY"}}`,
				`{"eventName": "INSERT", "dynamodb": {"NewImage": {"pk": {"S": "x"}, "object": {"M": {}}}, "SequenceNumber": "1", "SizeBytes": 1, "StreamViewType": "NEW_IMAGE"}}`,
				`{"eventName": "REMOVE", "dynamodb": {"Keys": {"pk": {"S": "x"}}, "SequenceNumber": "1", "SizeBytes": 1, "StreamViewType": "KEYS_ONLY"}}`,
				`{"eventName": "UNKNOWN", "dynamodb": {"SequenceNumber": "1", "SizeBytes": 1, "StreamViewType": "KEYS_ONLY"}}`,
			},
			expected: nil,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			writer := &fakeWriter{}
			handler := NewHandler(writer, ddb.InscriptionIndex, "bibl")

			if err := handler.HandleDynamoDBEvent(context.Background(), decodeEvent(t, tc.records...)); err != nil {
				t.Fatalf("HandleDynamoDBEvent failed: %v", err)
			}

			if fmt.Sprint(writer.calls) != fmt.Sprint(tc.expected) {
				t.Errorf("Expected calls %v, got %v", tc.expected, writer.calls)
			}
		})
	}
}

func TestHandleDynamoDBEventStopsOnWriteError(t *testing.T) {
	writer := &fakeWriter{failOn: "save"}
	handler := NewHandler(writer, ddb.InscriptionIndex, "bibl")

	event := decodeEvent(t,
		upsert("INSERT", "akko0001", "iip", validBibl),
		remove("akko0002", "iip"),
	)

	if err := handler.HandleDynamoDBEvent(context.Background(), event); err == nil {
		t.Fatal("Expected the write error to be returned")
	}
	if len(writer.calls) != 1 {
		t.Errorf("Expected processing to stop after the failed batch, got %v", writer.calls)
	}
}
