package natives

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"noxy-vm/internal/value"
)

// ddbClient lazily constructs the DynamoDB client on first use, so a
// script that never calls cloud_put/cloud_get never touches the network
// or requires AWS credentials to be configured.
func (r *Registry) ddbClient(ctx context.Context) (*dynamodb.Client, error) {
	if r.ddb != nil {
		return r.ddb, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	r.ddb = dynamodb.NewFromConfig(cfg)
	return r.ddb, nil
}

type cloudItem struct {
	Key   string `dynamodbav:"key"`
	Value string `dynamodbav:"value"`
}

// cloudPut writes key/value into a DynamoDB table whose partition key is
// named "key". AWS/network failures are reported as a script-visible
// error string rather than aborting the VM: a host function talking to
// an external service is expected to fail sometimes, unlike the core's
// type-mismatch runtime errors.
func (r *Registry) cloudPut(args []value.Value) (value.Value, error) {
	table, err := argString(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	key, err := argString(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	if len(args) < 3 {
		return value.Value{}, errExpected3
	}

	ctx := context.Background()
	client, err := r.ddbClient(ctx)
	if err != nil {
		return r.heap.NewString("error: " + err.Error()), nil
	}

	item, err := attributevalue.MarshalMap(cloudItem{Key: key, Value: args[2].String()})
	if err != nil {
		return r.heap.NewString("error: " + err.Error()), nil
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item})
	if err != nil {
		return r.heap.NewString("error: " + err.Error()), nil
	}
	return value.NewBool(true), nil
}

// cloudGet reads a previously-put value back, returning nil when the key
// is absent and an error string (never aborting the VM) on AWS failure.
func (r *Registry) cloudGet(args []value.Value) (value.Value, error) {
	table, err := argString(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	key, err := argString(args, 1)
	if err != nil {
		return value.Value{}, err
	}

	ctx := context.Background()
	client, err := r.ddbClient(ctx)
	if err != nil {
		return r.heap.NewString("error: " + err.Error()), nil
	}

	keyItem, err := attributevalue.MarshalMap(map[string]string{"key": key})
	if err != nil {
		return r.heap.NewString("error: " + err.Error()), nil
	}

	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{TableName: &table, Key: keyItem})
	if err != nil {
		return r.heap.NewString("error: " + err.Error()), nil
	}
	if out.Item == nil {
		return value.NewNil(), nil
	}

	var got cloudItem
	if err := attributevalue.UnmarshalMap(out.Item, &got); err != nil {
		return r.heap.NewString("error: " + err.Error()), nil
	}
	return r.heap.NewString(got.Value), nil
}
