package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Interfaces para abstrair o SDK da AWS (Permite Mocking)
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver busca valores no Parameter Store e no Secrets Manager.
// Os clientes reais são criados na primeira chamada quando não informados.
type Resolver struct {
	Region  string
	SSM     SSMClient
	Secrets SecretsClient
}

// Parameter lê um parâmetro do SSM, sempre com decrypt.
func (r *Resolver) Parameter(ctx context.Context, path string) (string, error) {
	if r.SSM == nil {
		cfg, err := GetAWSConfig(ctx, r.Region)
		if err != nil {
			return "", err
		}
		r.SSM = ssm.NewFromConfig(cfg)
	}

	out, err := r.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("erro no SSM GetParameter %s: %w", path, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parâmetro %s sem valor", path)
	}
	return *out.Parameter.Value, nil
}

// Secret lê o SecretString de um segredo.
func (r *Resolver) Secret(ctx context.Context, id string) (string, error) {
	if r.Secrets == nil {
		cfg, err := GetAWSConfig(ctx, r.Region)
		if err != nil {
			return "", err
		}
		r.Secrets = secretsmanager.NewFromConfig(cfg)
	}

	out, err := r.Secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("erro no SecretsManager %s: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("segredo %s sem SecretString", id)
	}
	return *out.SecretString, nil
}
