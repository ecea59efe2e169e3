package algolia

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Secrets holds the Algolia application credentials.
type Secrets struct {
	// AppID is the Algolia application ID.
	AppID string `json:"app_id"`
	// APIKey is the search-only API key sent by the session.
	APIKey string `json:"api_key"`
}

// FetchSecrets is a function type that retrieves Algolia credentials.
// It allows for different secret retrieval strategies (static, environment variables, etc.).
type FetchSecrets func() (Secrets, error)

// StaticSecrets returns a FetchSecrets function that provides static credentials.
func StaticSecrets(appID, apiKey string) FetchSecrets {
	return func() (Secrets, error) {
		return Secrets{AppID: appID, APIKey: apiKey}, nil
	}
}

// EnvSecrets reads ALGOLIA_APP_ID and ALGOLIA_API_KEY.
func EnvSecrets() FetchSecrets {
	return func() (Secrets, error) {
		appID := os.Getenv("ALGOLIA_APP_ID")
		if appID == "" {
			return Secrets{}, fmt.Errorf("ALGOLIA_APP_ID environment variable is not set")
		}

		apiKey := os.Getenv("ALGOLIA_API_KEY")
		if apiKey == "" {
			return Secrets{}, fmt.Errorf("ALGOLIA_API_KEY environment variable is not set")
		}

		return Secrets{AppID: appID, APIKey: apiKey}, nil
	}
}

// SecretsManagerClient defines the interface for AWS Secrets Manager operations.
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecrets reads the credentials stored at "{env}/algolia" in AWS Secrets
// Manager. The secret holds JSON with app_id and api_key fields.
func AWSSecrets(ctx context.Context, client SecretsManagerClient, env string) FetchSecrets {
	return AWSSecretsFromARN(ctx, client, fmt.Sprintf("%s/algolia", env))
}

// AWSSecretsFromARN reads the credentials from the secret with the given ARN
// or name.
func AWSSecretsFromARN(ctx context.Context, client SecretsManagerClient, secretID string) FetchSecrets {
	return func() (Secrets, error) {
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			return Secrets{}, fmt.Errorf("failed to get secret %s from AWS Secrets Manager: %w", secretID, err)
		}

		if result.SecretString == nil {
			return Secrets{}, fmt.Errorf("secret %s has no string value", secretID)
		}

		var secrets Secrets
		if err := json.Unmarshal([]byte(aws.ToString(result.SecretString)), &secrets); err != nil {
			return Secrets{}, fmt.Errorf("failed to unmarshal secret %s: %w", secretID, err)
		}

		return secrets, nil
	}
}
