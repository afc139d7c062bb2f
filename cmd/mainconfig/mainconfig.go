package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/medicare-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medicare-assistant/internal/config"
)

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.CapacityBackend == bootstrap.BackendDynamo ||
		strings.TrimSpace(cfg.AttachmentsBucket) != "" ||
		strings.TrimSpace(cfg.EventsQueueURL) != "" ||
		cfg.EmailProvider == "ses"
}

// LoadAWSConfig centralizes AWS SDK initialization so the API and tooling
// share the same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sqs.ServiceID, dynamodb.ServiceID, s3.ServiceID, sesv2.ServiceID:
					return aws.Endpoint{
						URL:               endpoint,
						PartitionID:       "aws",
						SigningRegion:     cfg.AWSRegion,
						HostnameImmutable: service == s3.ServiceID,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}

// AWSClients groups the service clients built from one aws.Config.
// A client is nil when nothing in the configuration uses it.
type AWSClients struct {
	DynamoDB  *dynamodb.Client
	S3        *s3.Client
	Presigner *s3.PresignClient
	SQS       *sqs.Client
	SES       *sesv2.Client
}

// BuildAWSClients creates only the clients the configuration asks for.
func BuildAWSClients(awsCfg aws.Config, cfg *appconfig.Config) AWSClients {
	var clients AWSClients
	if cfg.CapacityBackend == bootstrap.BackendDynamo {
		clients.DynamoDB = dynamodb.NewFromConfig(awsCfg)
	}
	if strings.TrimSpace(cfg.AttachmentsBucket) != "" {
		clients.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			// LocalStack serves buckets by path rather than virtual host.
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		clients.Presigner = s3.NewPresignClient(clients.S3)
	}
	if strings.TrimSpace(cfg.EventsQueueURL) != "" {
		clients.SQS = sqs.NewFromConfig(awsCfg)
	}
	if cfg.EmailProvider == "ses" {
		clients.SES = sesv2.NewFromConfig(awsCfg)
	}
	return clients
}
