package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Parameter names under the SSM prefix.
const (
	ssmAPIKeyParam    = "/mexc/api-key"
	ssmSecretKeyParam = "/mexc/secret-key"
)

// ParameterAPI is the subset of the SSM client used to read credentials.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewSSMClient builds an SSM client for region using the default AWS
// credential chain.
func NewSSMClient(ctx context.Context, region string) (*ssm.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("config: load aws config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// LoadSSMCredentials reads {prefix}/mexc/api-key and {prefix}/mexc/secret-key
// with decryption.
func LoadSSMCredentials(ctx context.Context, api ParameterAPI, prefix string) (apiKey, secretKey string, err error) {
	prefix = strings.TrimRight(prefix, "/")
	if apiKey, err = getParameter(ctx, api, prefix+ssmAPIKeyParam); err != nil {
		return "", "", err
	}
	if secretKey, err = getParameter(ctx, api, prefix+ssmSecretKeyParam); err != nil {
		return "", "", err
	}
	return apiKey, secretKey, nil
}

func getParameter(ctx context.Context, api ParameterAPI, name string) (string, error) {
	out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("config: ssm get %s: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("config: ssm parameter %s is empty", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}
