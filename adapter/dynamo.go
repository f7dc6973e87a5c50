package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-json-experiment/json"

	"github.com/fulldump/todostore/record"
)

// DynamoClient is the subset of the DynamoDB API the adapter needs.
type DynamoClient interface {
	CreateTable(ctx context.Context, params *sdk.CreateTableInput, optFns ...func(*sdk.Options)) (*sdk.CreateTableOutput, error)
	UpdateItem(ctx context.Context, params *sdk.UpdateItemInput, optFns ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *sdk.DeleteItemInput, optFns ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error)
	GetItem(ctx context.Context, params *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	Query(ctx context.Context, params *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error)
	Scan(ctx context.Context, params *sdk.ScanInput, optFns ...func(*sdk.Options)) (*sdk.ScanOutput, error)
}

type DynamoOptions struct {
	Region    string
	Endpoint  string // local dynamodb or localstack
	AccessKey string
	SecretKey string
}

func NewDynamoClient(ctx context.Context, options DynamoOptions) (*sdk.Client, error) {
	loaders := []func(*config.LoadOptions) error{}
	if options.Region != "" {
		loaders = append(loaders, config.WithRegion(options.Region))
	}
	if options.AccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.AccessKey, options.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws configuration: %w", err)
	}

	return sdk.NewFromConfig(cfg, func(o *sdk.Options) {
		if options.Endpoint != "" {
			o.BaseEndpoint = aws.String(options.Endpoint)
		}
	}), nil
}

var lastSeq atomic.Int64

// nextSeq is a timestamp that never repeats within the process.
func nextSeq() int64 {
	for {
		now := time.Now().UnixNano()
		last := lastSeq.Load()
		if now <= last {
			now = last + 1
		}
		if lastSeq.CompareAndSwap(last, now) {
			return now
		}
	}
}

type dynamoItem struct {
	Namespace string `dynamodbav:"namespace"`
	ID        string `dynamodbav:"id"`
	Seq       int64  `dynamodbav:"seq"`
	Payload   string `dynamodbav:"payload"`
}

// Dynamo keeps every namespace in one table keyed by (namespace, id).
type Dynamo struct {
	Table  string
	client DynamoClient
}

func NewDynamo(client DynamoClient, table string) *Dynamo {
	return &Dynamo{
		Table:  table,
		client: client,
	}
}

// EnsureTable creates the table when missing.
func (d *Dynamo) EnsureTable(ctx context.Context) error {
	_, err := d.client.CreateTable(ctx, &sdk.CreateTableInput{
		TableName: aws.String(d.Table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("namespace"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("namespace"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create table '%s': %w", d.Table, err)
	}
	return nil
}

func (d *Dynamo) Namespace(name string) *DynamoNamespace {
	return &DynamoNamespace{Name: name, dynamo: d}
}

// Namespaces scans the whole table, meant for startup only.
func (d *Dynamo) Namespaces(ctx context.Context) ([]string, error) {
	found := map[string]struct{}{}
	paginator := sdk.NewScanPaginator(d.client, &sdk.ScanInput{
		TableName:            aws.String(d.Table),
		ProjectionExpression: aws.String("#ns"),
		ExpressionAttributeNames: map[string]string{
			"#ns": "namespace",
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan namespaces: %w", err)
		}
		for _, item := range page.Items {
			v, ok := item["namespace"].(*types.AttributeValueMemberS)
			if ok {
				found[v.Value] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(found))
	for name := range found {
		result = append(result, name)
	}
	sort.Strings(result)
	return result, nil
}

func (d *Dynamo) Drop(ctx context.Context, namespace string) error {
	n := d.Namespace(namespace)
	items, err := n.query(ctx)
	if err != nil {
		return wrap("drop", namespace, "", err)
	}
	for _, item := range items {
		_, err := d.client.DeleteItem(ctx, &sdk.DeleteItemInput{
			TableName: aws.String(d.Table),
			Key:       n.key(item.ID),
		})
		if err != nil {
			return wrap("drop", namespace, item.ID, err)
		}
	}
	return nil
}

type DynamoNamespace struct {
	Name   string
	dynamo *Dynamo
}

func (n *DynamoNamespace) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"namespace": &types.AttributeValueMemberS{Value: n.Name},
		"id":        &types.AttributeValueMemberS{Value: id},
	}
}

func (n *DynamoNamespace) Create(ctx context.Context, r record.Record) (string, error) {
	r, id := prepare(r)

	payload, err := json.Marshal(r)
	if err != nil {
		return "", wrap("create", n.Name, id, err)
	}

	// seq survives upserts so the creation order is kept
	_, err = n.dynamo.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:        aws.String(n.dynamo.Table),
		Key:              n.key(id),
		UpdateExpression: aws.String("SET #payload = :payload, #seq = if_not_exists(#seq, :seq)"),
		ExpressionAttributeNames: map[string]string{
			"#payload": "payload",
			"#seq":     "seq",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":payload": &types.AttributeValueMemberS{Value: string(payload)},
			":seq":     &types.AttributeValueMemberN{Value: fmt.Sprint(nextSeq())},
		},
	})
	if err != nil {
		return "", wrap("create", n.Name, id, err)
	}

	return id, nil
}

func (n *DynamoNamespace) Update(ctx context.Context, r record.Record) error {
	id := r.ID()

	payload, err := json.Marshal(r)
	if err != nil {
		return wrap("update", n.Name, id, err)
	}

	_, err = n.dynamo.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:           aws.String(n.dynamo.Table),
		Key:                 n.key(id),
		UpdateExpression:    aws.String("SET #payload = :payload"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#payload": "payload",
			"#id":      "id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":payload": &types.AttributeValueMemberS{Value: string(payload)},
		},
	})
	return wrap("update", n.Name, id, notFoundOnCondition(err))
}

func (n *DynamoNamespace) Delete(ctx context.Context, id string) error {
	_, err := n.dynamo.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName:           aws.String(n.dynamo.Table),
		Key:                 n.key(id),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
	})
	return wrap("delete", n.Name, id, notFoundOnCondition(err))
}

func (n *DynamoNamespace) Get(ctx context.Context, id string) (record.Record, error) {
	out, err := n.dynamo.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(n.dynamo.Table),
		Key:            n.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrap("get", n.Name, id, err)
	}
	if len(out.Item) == 0 {
		return nil, wrap("get", n.Name, id, ErrNotFound)
	}

	item := dynamoItem{}
	err = attributevalue.UnmarshalMap(out.Item, &item)
	if err != nil {
		return nil, wrap("get", n.Name, id, fmt.Errorf("unmarshal item: %w", err))
	}
	r := record.Record{}
	err = json.Unmarshal([]byte(item.Payload), &r)
	if err != nil {
		return nil, wrap("get", n.Name, id, fmt.Errorf("decode payload: %w", err))
	}
	return r, nil
}

func (n *DynamoNamespace) query(ctx context.Context) ([]dynamoItem, error) {
	items := []dynamoItem{}
	paginator := sdk.NewQueryPaginator(n.dynamo.client, &sdk.QueryInput{
		TableName:              aws.String(n.dynamo.Table),
		KeyConditionExpression: aws.String("#ns = :ns"),
		ExpressionAttributeNames: map[string]string{
			"#ns": "namespace",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ns": &types.AttributeValueMemberS{Value: n.Name},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		found := []dynamoItem{}
		err = attributevalue.UnmarshalListOfMaps(page.Items, &found)
		if err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		items = append(items, found...)
	}
	return items, nil
}

func (n *DynamoNamespace) ReadAll(ctx context.Context) ([]record.Record, error) {
	items, err := n.query(ctx)
	if err != nil {
		return nil, wrap("read", n.Name, "", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Seq < items[j].Seq
	})

	result := make([]record.Record, 0, len(items))
	for _, item := range items {
		r := record.Record{}
		err := json.Unmarshal([]byte(item.Payload), &r)
		if err != nil {
			return nil, wrap("read", n.Name, item.ID, fmt.Errorf("decode payload: %w", err))
		}
		result = append(result, r)
	}
	return result, nil
}

func notFoundOnCondition(err error) error {
	var failed *types.ConditionalCheckFailedException
	if errors.As(err, &failed) {
		return ErrNotFound
	}
	return err
}
