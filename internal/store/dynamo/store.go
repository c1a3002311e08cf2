// Package dynamo implements the record store on DynamoDB.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

const (
	partitionKey = "seller_id"
	sortKey      = "url_id"
	fetchURLAttr = "pub_url"
)

// api is the subset of the DynamoDB client the store uses.
type api interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Store implements harvest.RecordStore against one DynamoDB table keyed by
// (seller_id, url_id).
type Store struct {
	client api
	table  string
}

// New wraps an existing DynamoDB client.
func New(client api, table string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	return &Store{client: client, table: table}, nil
}

// NewFromDefaultConfig builds a store using the default AWS credential
// chain. A non-empty endpoint overrides the service endpoint (local runs).
func NewFromDefaultConfig(ctx context.Context, region, table, endpoint string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client, table)
}

// Resolve fetches the stored record's fetch URL, returning
// harvest.ErrNotSeeded when the key pair is absent or has no URL.
func (s *Store) Resolve(ctx context.Context, sellerID, urlID string) (harvest.ResolvedTarget, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       keyFor(sellerID, urlID),
	})
	if err != nil {
		return harvest.ResolvedTarget{}, fmt.Errorf("get item: %w", err)
	}
	if out.Item == nil {
		return harvest.ResolvedTarget{}, harvest.ErrNotSeeded
	}
	attr, ok := out.Item[fetchURLAttr].(*types.AttributeValueMemberS)
	if !ok || attr.Value == "" {
		return harvest.ResolvedTarget{}, harvest.ErrNotSeeded
	}
	return harvest.ResolvedTarget{FetchURL: attr.Value}, nil
}

// PutSeed writes the full discovery-phase record.
func (s *Store) PutSeed(ctx context.Context, seed harvest.SeedRecord) error {
	if seed.SellerID == "" || seed.URLID == "" {
		return fmt.Errorf("seed key pair is required")
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      EncodeMap(seed.Fields()),
	}); err != nil {
		return fmt.Errorf("put seed: %w", err)
	}
	return nil
}

// Update applies a partial update, writing only the given fields. A
// condition on the partition key guarantees the record already exists;
// this path never creates records.
func (s *Store) Update(ctx context.Context, sellerID, urlID string, fields map[string]any) (map[string]any, error) {
	if len(fields) == 0 {
		return map[string]any{}, nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sets []string
	exprNames := make(map[string]string, len(fields))
	exprValues := make(map[string]types.AttributeValue, len(fields))
	for i, name := range names {
		placeholder := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		sets = append(sets, placeholder+" = "+valueKey)
		exprNames[placeholder] = name
		exprValues[valueKey] = Encode(fields[name])
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyFor(sellerID, urlID),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String(fmt.Sprintf("attribute_exists(%s)", partitionKey)),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, fmt.Errorf("update %s/%s: %w", sellerID, urlID, harvest.ErrNotSeeded)
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	return DecodeMap(out.Attributes), nil
}

func keyFor(sellerID, urlID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberS{Value: sellerID},
		sortKey:      &types.AttributeValueMemberS{Value: urlID},
	}
}
