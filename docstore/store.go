package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/palettehq/palette/internal/ident"
)

// batchGetLimit is the DynamoDB BatchGetItem cap per request.
const batchGetLimit = 100

// API is the subset of the DynamoDB client used by the Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// Store provides document operations over the per-kind entity tables.
type Store struct {
	client API
	config Config
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Table returns the table name for an entity kind.
func (s *Store) Table(kind string) string {
	return s.config.TablePrefix + kind
}

func idKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

// Get retrieves a document by numeric id or username, dispatching on the
// shape of the key. Malformed keys report ErrNotFound: a key that cannot
// exist is indistinguishable from one that does not.
func (s *Store) Get(ctx context.Context, kind, idOrUsername string) (Document, error) {
	switch ident.Classify(idOrUsername) {
	case ident.KindID:
		id, _ := ident.ParseID(idOrUsername)
		return s.GetByID(ctx, kind, id)
	case ident.KindUsername:
		return s.GetByUsername(ctx, kind, idOrUsername)
	default:
		return nil, ErrNotFound
	}
}

// GetByID retrieves a document by numeric id, returning ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, kind string, id int64) (Document, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Table(kind)),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return unmarshalDocument(result.Item)
}

// GetByUsername retrieves a document by username via the username GSI.
func (s *Store) GetByUsername(ctx context.Context, kind, username string) (Document, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.Table(kind)),
		IndexName:              aws.String(s.config.UsernameIndex),
		KeyConditionExpression: aws.String("username = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: username},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s %q: %w", kind, username, err)
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalDocument(result.Items[0])
}

// Put writes a whole document keyed by its numeric id. Existing documents
// are overwritten; there is no merge.
func (s *Store) Put(ctx context.Context, kind string, doc Document) error {
	if doc.ID() == 0 {
		return ErrMissingID
	}
	item, err := attributevalue.MarshalMap(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", kind, err)
	}
	// Marshal the id as N explicitly so it never degrades to a float encoding.
	item["id"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(doc.ID(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.Table(kind)),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put %s %d: %w", kind, doc.ID(), err)
	}
	return nil
}

// AppendType adds a relation-type tag to the document's type list if it is
// not already present. The guard lives in the condition expression, so a
// repeated append is a no-op rather than a duplicate.
func (s *Store) AppendType(ctx context.Context, kind string, id int64, tag string) error {
	tagList, err := attributevalue.MarshalList([]string{tag})
	if err != nil {
		return fmt.Errorf("marshal type tag: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.Table(kind)),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET #type = list_append(if_not_exists(#type, :empty), :tag)"),
		ConditionExpression: aws.String("attribute_exists(id) AND NOT contains(#type, :t)"),
		ExpressionAttributeNames: map[string]string{
			"#type": "type",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tag":   &types.AttributeValueMemberL{Value: tagList},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":t":     &types.AttributeValueMemberS{Value: tag},
		},
	})

	// Condition failure means the tag is already there - idempotent.
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("append type %q to %s %d: %w", tag, kind, id, err)
	}
	return nil
}

// Delete removes a document. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, kind string, id int64) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.Table(kind)),
		Key:       idKey(id),
	})
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	return nil
}

// BatchGet fetches a projection of the given fields for many ids in as few
// round trips as the id count allows. Ids with no document are silently
// absent from the result; callers must tolerate fewer documents than ids.
func (s *Store) BatchGet(ctx context.Context, kind string, ids []int64, fields ...string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	table := s.Table(kind)
	docs := make([]Document, 0, len(ids))

	for start := 0; start < len(ids); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(ids) {
			end = len(ids)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, idKey(id))
		}

		request := map[string]types.KeysAndAttributes{
			table: projectedKeys(keys, fields),
		}

		// DynamoDB may return unprocessed keys under load; re-request until
		// the batch drains.
		for len(request) > 0 {
			result, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: request,
			})
			if err != nil {
				return nil, fmt.Errorf("batch get %s: %w", kind, err)
			}
			for _, item := range result.Responses[table] {
				doc, err := unmarshalDocument(item)
				if err != nil {
					return nil, err
				}
				docs = append(docs, doc)
			}
			request = result.UnprocessedKeys
		}
	}

	return docs, nil
}

// projectedKeys builds the KeysAndAttributes request with a projection
// expression over the requested fields. Field names go through expression
// attribute names since "name" and "type" are DynamoDB reserved words.
func projectedKeys(keys []map[string]types.AttributeValue, fields []string) types.KeysAndAttributes {
	ka := types.KeysAndAttributes{Keys: keys}
	if len(fields) == 0 {
		return ka
	}

	names := make(map[string]string, len(fields))
	expr := ""
	for i, f := range fields {
		placeholder := fmt.Sprintf("#f%d", i)
		names[placeholder] = f
		if i > 0 {
			expr += ", "
		}
		expr += placeholder
	}
	ka.ProjectionExpression = aws.String(expr)
	ka.ExpressionAttributeNames = names
	return ka
}

func unmarshalDocument(item map[string]types.AttributeValue) (Document, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return Document(doc), nil
}
