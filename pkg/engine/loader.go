package engine

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raywall/fast-ledger-service/ledger"
	"github.com/raywall/fast-ledger-service/pkg/awsconf"
	localConfig "github.com/raywall/fast-ledger-service/pkg/config"
	"github.com/raywall/fast-ledger-service/pkg/config/injector"
	"gopkg.in/yaml.v3"
)

// --- Interfaces para Mocking ---

type S3Downloader interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type DynamoGetter interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// UniversalLoader suporta múltiplas fontes de configuração (Local, S3, DynamoDB).
//
// Clientes não informados são criados na primeira leitura que precisar deles,
// a partir da configuração AWS do processo.
type UniversalLoader struct {
	Region   string
	S3       S3Downloader
	Dynamo   DynamoGetter
	Resolver injector.ValueResolver

	validator *localConfig.ConfigValidator
}

// NewUniversalLoader cria uma nova instância, validando as entidades contra
// o catálogo do ledger.
func NewUniversalLoader(region string) *UniversalLoader {
	return &UniversalLoader{
		Region:    region,
		Resolver:  &awsconf.Resolver{Region: region},
		validator: localConfig.NewValidator(ledger.Names()...),
	}
}

// Load detecta o esquema da fonte e carrega a configuração.
func (ul *UniversalLoader) Load(ctx context.Context, source string) (*localConfig.ServiceConfig, error) {
	raw, err := ul.Read(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("falha leitura config (%s): %w", source, err)
	}
	return ul.parseAndValidate(ctx, raw)
}

// Read devolve o conteúdo bruto da fonte.
func (ul *UniversalLoader) Read(ctx context.Context, source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "s3://"):
		if ul.S3 == nil {
			cfg, err := awsconf.GetAWSConfig(ctx, ul.Region)
			if err != nil {
				return nil, err
			}
			ul.S3 = s3.NewFromConfig(cfg)
		}
		return ul.loadFromS3(ctx, source)

	case strings.HasPrefix(source, "dynamodb://"):
		if ul.Dynamo == nil {
			cfg, err := awsconf.GetAWSConfig(ctx, ul.Region)
			if err != nil {
				return nil, err
			}
			ul.Dynamo = dynamodb.NewFromConfig(cfg)
		}
		return ul.loadFromDynamoDB(ctx, source)
	}

	// Suporta tanto "file://config.yaml" quanto apenas "config.yaml"
	return os.ReadFile(strings.TrimPrefix(source, "file://"))
}

func (ul *UniversalLoader) loadFromS3(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("URL S3 inválida: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("URL S3 inválida: esperado s3://bucket/chave")
	}

	out, err := ul.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// loadFromDynamoDB lê o YAML de um item: dynamodb://tabela/chave?col=dado&pk=UserId
func (ul *UniversalLoader) loadFromDynamoDB(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("URL DynamoDB inválida: %w", err)
	}

	tableName := u.Host
	pkValue := strings.TrimPrefix(u.Path, "/")

	colName := u.Query().Get("col")
	if colName == "" {
		colName = "config" // Coluna padrão onde o YAML está salvo
	}
	pkName := u.Query().Get("pk")
	if pkName == "" {
		pkName = "id" // Nome padrão da Partition Key
	}

	out, err := ul.Dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			pkName: &types.AttributeValueMemberS{Value: pkValue},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("item não encontrado no DynamoDB")
	}

	var itemMap map[string]any
	if err := attributevalue.UnmarshalMap(out.Item, &itemMap); err != nil {
		return nil, err
	}

	content, ok := itemMap[colName].(string)
	if !ok || content == "" {
		return nil, fmt.Errorf("coluna '%s' inválida ou vazia no DynamoDB", colName)
	}
	return []byte(content), nil
}

func (ul *UniversalLoader) parseAndValidate(ctx context.Context, data []byte) (*localConfig.ServiceConfig, error) {
	var cfg localConfig.ServiceConfig

	// 1. Unmarshal (YAML -> Struct)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("YAML malformado: %w", err)
	}

	// 2. Injection (Env/Secrets/SSM)
	if err := injector.New(ul.Resolver).Inject(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("falha na injeção de variáveis: %w", err)
	}

	// 3. Validation
	if ul.validator != nil {
		if err := ul.validator.Validate(&cfg); err != nil {
			return nil, fmt.Errorf("validação da configuração falhou: %w", err)
		}
	}

	return &cfg, nil
}
