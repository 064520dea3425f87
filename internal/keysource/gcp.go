// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package keysource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"github.com/minio/bank"
	"google.golang.org/api/option"
	secretmanagerpb "google.golang.org/genproto/googleapis/cloud/secretmanager/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPCredentials represent GCP service account credentials.
type GCPCredentials struct {
	ClientID string // Client ID of the service account
	Client   string // Client email of the service account
	KeyID    string // Private key ID
	Key      string // Encoded private key
}

// GCPSecretManager is a Source that fetches an API key
// from the GCP SecretManager.
type GCPSecretManager struct {
	// Endpoint is the SecretManager endpoint. Defaults
	// to "secretmanager.googleapis.com:443".
	Endpoint string

	ProjectID string

	// Name is the secret name. Load reads its latest
	// version.
	Name string

	// Credentials are the service account credentials.
	// If empty, they are taken from the environment, e.g.
	// when running on GCP.
	Credentials GCPCredentials

	Scopes []string
}

// Load fetches the secret and parses its payload as API key.
func (s *GCPSecretManager) Load(ctx context.Context) (bank.APIKey, error) {
	if s.ProjectID == "" {
		return nil, errors.New("keysource: no GCP project ID provided")
	}

	var options []option.ClientOption
	if s.Endpoint != "" {
		options = append(options, option.WithEndpoint(s.Endpoint))
	}
	if s.Credentials != (GCPCredentials{}) {
		if s.Credentials.Client == "" {
			return nil, errors.New("keysource: no GCP client email provided")
		}
		if s.Credentials.ClientID == "" {
			return nil, errors.New("keysource: no GCP client ID provided")
		}
		if s.Credentials.Key == "" {
			return nil, errors.New("keysource: no GCP client private key provided")
		}
		if s.Credentials.KeyID == "" {
			return nil, errors.New("keysource: no GCP client private key ID provided")
		}
		credentialsJSON, err := s.credentialsJSON()
		if err != nil {
			return nil, err
		}
		options = append(options, option.WithCredentialsJSON(credentialsJSON))
	}
	if len(s.Scopes) != 0 {
		options = append(options, option.WithScopes(s.Scopes...))
	}

	client, err := secretmanager.NewClient(ctx, options...)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	name := path.Join("projects", s.ProjectID, "secrets", s.Name, "versions", "latest")
	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("keysource: failed to read '%s' from GCP: %v", name, err)
	}
	return parse(string(result.Payload.Data))
}

// credentialsJSON returns the service account credentials in
// the JSON format produced by GCP.
func (s *GCPSecretManager) credentialsJSON() ([]byte, error) {
	type CredentialsJSON struct {
		Type         string `json:"type"`
		ProjectID    string `json:"project_id"`
		PrivateKeyID string `json:"private_key_id"`
		PrivateKey   string `json:"private_key"`
		ClientEmail  string `json:"client_email"`
		ClientID     string `json:"client_id"`

		AuthURI             string `json:"auth_uri"`
		TokenURI            string `json:"token_uri"`
		AuthProviderCertURL string `json:"auth_provider_x509_cert_url"`
		ClientCertURL       string `json:"client_x509_cert_url"`
	}
	return json.Marshal(CredentialsJSON{
		Type:                "service_account",
		ProjectID:           s.ProjectID,
		PrivateKeyID:        s.Credentials.KeyID,
		PrivateKey:          s.Credentials.Key,
		ClientEmail:         s.Credentials.Client,
		ClientID:            s.Credentials.ClientID,
		AuthURI:             "https://accounts.google.com/o/oauth2/auth",
		TokenURI:            "https://accounts.google.com/o/oauth2/token",
		AuthProviderCertURL: "https://www.googleapis.com/oauth2/v1/certs",
		ClientCertURL:       "https://www.googleapis.com/robot/v1/metadata/x509/service-account-email",
	})
}

func (s *GCPSecretManager) String() string { return "GCP SecretManager: " + s.ProjectID + "/" + s.Name }
