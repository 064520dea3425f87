// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package keysource

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/minio/bank"
)

// AWSCredentials represents static AWS credentials:
// access key, secret key and a session token
type AWSCredentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// SecretsManager is a Source that fetches an API key
// from the AWS Secrets Manager.
// See: https://aws.amazon.com/secrets-manager
type SecretsManager struct {
	// Addr is the HTTP address of the AWS Secret
	// Manager. In general, the address has the
	// following form:
	//  secretsmanager.<region>.amazonaws.com
	Addr string

	// Region is the AWS region.
	Region string

	// Name is the name of the secret holding the key.
	Name string

	// Login contains the AWS credentials. If empty, the
	// SDK looks for credentials in the environment, the
	// shared credentials file and the EC2 instance metadata.
	Login AWSCredentials
}

// Load fetches the secret and parses its value as API key.
func (s *SecretsManager) Load(ctx context.Context) (bank.APIKey, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}

	response, err := client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.Name),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
			return nil, ErrNotFound
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("keysource: failed to read '%s' from AWS: %v", s.Name, err)
	}

	// A secret is stored either as "SecretString" or as
	// "SecretBinary", never both.
	if response.SecretString != nil {
		return parse(*response.SecretString)
	}
	return parse(string(response.SecretBinary))
}

func (s *SecretsManager) connect() (*secretsmanager.SecretsManager, error) {
	creds := credentials.NewStaticCredentials(
		s.Login.AccessKey,
		s.Login.SecretKey,
		s.Login.SessionToken,
	)
	if s.Login == (AWSCredentials{}) {
		creds = nil
	}

	session, err := session.NewSessionWithOptions(session.Options{
		Config: aws.Config{
			Endpoint:    aws.String(s.Addr),
			Region:      aws.String(s.Region),
			Credentials: creds,
		},
		SharedConfigState: session.SharedConfigDisable,
	})
	if err != nil {
		return nil, err
	}
	return secretsmanager.New(session), nil
}

func (s *SecretsManager) String() string { return "AWS SecretsManager: " + s.Addr + "/" + s.Name }
