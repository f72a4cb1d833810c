// Package ddb models catalog records stored in DynamoDB and the stream
// events that carry their changes to the search indices.
package ddb

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Default index names for the two catalog record kinds.
const (
	InscriptionIndex  = "iip"
	BibliographyIndex = "iip-biblio"
)

// Item is one catalog record in the table. The partition key is the record
// id and the sort key the search index the record is synced to.
type Item struct {
	ID        string         `dynamodbav:"pk"`
	IndexName string         `dynamodbav:"sk"`
	Object    map[string]any `dynamodbav:"object"`
}

// MarshalItem converts an Item into a PutItem attribute map.
func MarshalItem(item Item) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(item)
}

// UnmarshalItem converts a stream image or GetItem result into an Item.
func UnmarshalItem(image map[string]types.AttributeValue) (Item, error) {
	var item Item
	if err := attributevalue.UnmarshalMap(image, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// SearchObject returns the record's fields as a search index object with
// objectID set to the record id.
func (i Item) SearchObject() map[string]any {
	obj := make(map[string]any, len(i.Object)+1)
	for k, v := range i.Object {
		obj[k] = v
	}
	obj["objectID"] = i.ID
	return obj
}
