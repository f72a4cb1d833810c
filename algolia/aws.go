package algolia

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerClient defines the interface for AWS Secrets Manager operations.
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretPath is the conventional secret name for an environment's Algolia
// credentials, e.g. "production/iip-algolia".
func SecretPath(env string) string {
	return fmt.Sprintf("%s/iip-algolia", env)
}

// AWSSecrets returns a FetchSecrets function that reads Algolia credentials
// from AWS Secrets Manager. secretID may be a secret name (see SecretPath) or
// a full ARN. The secret holds JSON with app_id and write_api_key fields.
func AWSSecrets(ctx context.Context, client SecretsManagerClient, secretID string) FetchSecrets {
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
			return Secrets{}, fmt.Errorf("failed to unmarshal secret JSON from %s: %w", secretID, err)
		}

		return secrets, nil
	}
}
