// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package keysource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/go-autorest/autorest"
	"github.com/Azure/go-autorest/autorest/azure/auth"
	"github.com/Azure/go-autorest/autorest/date"
	"github.com/minio/bank"
)

// KeyVault secrets API version and OAuth resource.
const (
	azureAPIVersion = "7.2"
	azureResource   = "https://vault.azure.net"
)

// AzureCredentials are Azure client credentials of an
// application with read access to the KeyVault secret.
type AzureCredentials struct {
	TenantID string
	ClientID string
	Secret   string
}

// AzureManagedIdentity is an Azure managed identity of
// a replica running inside Azure.
type AzureManagedIdentity struct {
	ClientID string
}

// AzureKeyVault is a Source that fetches an API key from
// an Azure KeyVault secret.
type AzureKeyVault struct {
	// Endpoint is the KeyVault URL, for example
	// "https://bank.vault.azure.net".
	Endpoint string

	// Name is the secret name.
	Name string

	// Version is the secret version. If empty, Load reads
	// the latest version.
	Version string

	// Exactly one of Credentials and ManagedIdentity
	// must be set.
	Credentials     *AzureCredentials
	ManagedIdentity *AzureManagedIdentity

	authorizer autorest.Authorizer
	client     *http.Client
}

// azureSecret is the subset of a KeyVault secret bundle
// read by Load.
type azureSecret struct {
	Value      string `json:"value"`
	Attributes struct {
		Enabled   *bool          `json:"enabled"`
		NotBefore *date.UnixTime `json:"nbf"`
		Expires   *date.UnixTime `json:"exp"`
	} `json:"attributes"`
}

// Load authenticates to Azure and reads the secret. A
// disabled, expired or not yet valid secret is rejected.
func (s *AzureKeyVault) Load(ctx context.Context) (bank.APIKey, error) {
	if s.Endpoint == "" {
		return nil, errors.New("keysource: azure keyvault endpoint is empty")
	}
	if s.Name == "" {
		return nil, errors.New("keysource: azure keyvault secret name is empty")
	}
	authorizer, err := s.authorize()
	if err != nil {
		return nil, err
	}

	path := "/secrets/{name}"
	params := map[string]any{"name": autorest.Encode("path", s.Name)}
	if s.Version != "" {
		path += "/{version}"
		params["version"] = autorest.Encode("path", s.Version)
	}
	req, err := autorest.Prepare((&http.Request{}).WithContext(ctx),
		autorest.AsGet(),
		autorest.WithBaseURL(strings.TrimSuffix(s.Endpoint, "/")),
		autorest.WithPathParameters(path, params),
		autorest.WithQueryParameters(map[string]any{"api-version": azureAPIVersion}),
		authorizer.WithAuthorization(),
	)
	if err != nil {
		return nil, fmt.Errorf("keysource: failed to prepare azure keyvault request: %v", err)
	}

	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := autorest.SendWithSender(client, req,
		autorest.DoRetryForStatusCodes(3, 200*time.Millisecond, autorest.StatusCodesForRetry...),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("keysource: failed to read '%s' from azure keyvault: %v", s.Name, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		autorest.Respond(resp, autorest.ByDiscardingBody(), autorest.ByClosing())
		return nil, ErrNotFound
	}

	var secret azureSecret
	if err = autorest.Respond(resp,
		autorest.WithErrorUnlessStatusCode(http.StatusOK),
		autorest.ByUnmarshallingJSON(&secret),
		autorest.ByClosing(),
	); err != nil {
		return nil, fmt.Errorf("keysource: failed to read '%s' from azure keyvault: %v", s.Name, err)
	}

	attr := secret.Attributes
	if attr.Enabled != nil && !*attr.Enabled {
		return nil, fmt.Errorf("keysource: azure keyvault secret '%s' is disabled", s.Name)
	}
	if attr.NotBefore != nil && time.Until(time.Time(*attr.NotBefore)) > 0 {
		return nil, fmt.Errorf("keysource: azure keyvault secret '%s' must not be used before %v", s.Name, time.Time(*attr.NotBefore))
	}
	if attr.Expires != nil && time.Until(time.Time(*attr.Expires)) <= 0 {
		return nil, fmt.Errorf("keysource: azure keyvault secret '%s' is expired", s.Name)
	}
	return parse(secret.Value)
}

func (s *AzureKeyVault) authorize() (autorest.Authorizer, error) {
	if s.authorizer != nil {
		return s.authorizer, nil
	}
	switch {
	case s.Credentials != nil && s.ManagedIdentity != nil:
		return nil, errors.New("keysource: more than one azure authentication method specified")
	case s.Credentials != nil:
		c := auth.NewClientCredentialsConfig(s.Credentials.ClientID, s.Credentials.Secret, s.Credentials.TenantID)
		c.Resource = azureResource
		authorizer, err := c.Authorizer()
		if err != nil {
			return nil, fmt.Errorf("keysource: failed to authenticate to azure: %v", err)
		}
		return authorizer, nil
	case s.ManagedIdentity != nil:
		c := auth.NewMSIConfig()
		c.Resource = azureResource
		c.ClientID = s.ManagedIdentity.ClientID
		authorizer, err := c.Authorizer()
		if err != nil {
			return nil, fmt.Errorf("keysource: failed to authenticate to azure: %v", err)
		}
		return authorizer, nil
	default:
		return nil, errors.New("keysource: no azure authentication method specified")
	}
}

func (s *AzureKeyVault) String() string { return "Azure KeyVault: " + s.Endpoint + "/" + s.Name }
