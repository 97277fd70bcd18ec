package awsconf

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

var (
	awsCfg  aws.Config
	awsOnce sync.Once
	awsErr  error
)

// GetAWSConfig carrega a configuração da AWS (env vars, profile, IAM role) de
// forma lazy-singleton. A região só é considerada na primeira chamada.
func GetAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	awsOnce.Do(func() {
		opts := []func(*config.LoadOptions) error{}
		if region != "" {
			opts = append(opts, config.WithRegion(region))
		}
		awsCfg, awsErr = config.LoadDefaultConfig(ctx, opts...)
	})
	return awsCfg, awsErr
}

// NewDynamoClient cria o cliente DynamoDB do processo. Um endpoint não vazio
// aponta o cliente para o DynamoDB Local.
func NewDynamoClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
