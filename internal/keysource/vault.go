// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package keysource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/minio/bank"
)

// Vault K/V engine API versions.
const (
	APIv1 = "v1"
	APIv2 = "v2"
)

// VaultAppRole contains the Vault AppRole
// authentication credentials.
type VaultAppRole struct {
	Engine    string // Defaults to "approle"
	Namespace string
	ID        string
	Secret    string
}

// VaultKubernetes contains the Vault Kubernetes
// authentication credentials.
type VaultKubernetes struct {
	Engine    string // Defaults to "kubernetes"
	Namespace string
	Role      string

	// JWT is either the service account token or a path
	// to a file containing it.
	JWT string
}

// Vault is a Source that fetches an API key from the
// Hashicorp Vault K/V secret engine.
type Vault struct {
	// Endpoint is the Vault server address.
	Endpoint string

	// Engine is the K/V engine path. Defaults to "kv".
	Engine string

	// APIVersion is the K/V engine API version, either
	// APIv1 or APIv2. Defaults to APIv1.
	APIVersion string

	Namespace string

	// Prefix is an optional path prefix under the engine.
	Prefix string

	// Name is the name of the entry. The key is stored
	// as value of the field of the same name.
	Name string

	AppRole    *VaultAppRole
	Kubernetes *VaultKubernetes

	// PrivateKey and Certificate are optional paths to
	// an mTLS client key pair.
	PrivateKey  string
	Certificate string

	// CAPath is an optional path to a CA certificate or
	// directory of CA certificates.
	CAPath string
}

// Load authenticates to Vault and reads the API key.
func (v *Vault) Load(ctx context.Context) (bank.APIKey, error) {
	if v.Endpoint == "" {
		return nil, errors.New("keysource: vault endpoint is empty")
	}
	if v.AppRole == nil && v.Kubernetes == nil {
		return nil, errors.New("keysource: no vault authentication method specified")
	}
	if v.AppRole != nil && v.Kubernetes != nil {
		return nil, errors.New("keysource: more than one vault authentication method specified")
	}
	engine, version := v.Engine, v.APIVersion
	if engine == "" {
		engine = "kv"
	}
	if version == "" {
		version = APIv1
	}
	if version != APIv1 && version != APIv2 {
		return nil, fmt.Errorf("keysource: invalid vault K/V API version '%s'", version)
	}

	client, err := v.connect()
	if err != nil {
		return nil, err
	}
	if err = v.login(ctx, client); err != nil {
		return nil, err
	}

	var location string
	if version == APIv2 {
		location = path.Join(engine, "data", v.Prefix, v.Name) // /<engine>/data/<prefix>/<name>
	} else {
		location = path.Join(engine, v.Prefix, v.Name) // /<engine>/<prefix>/<name>
	}
	secret, err := client.Logical().ReadWithContext(ctx, location)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("keysource: failed to read '%s' from vault: %v", location, err)
	}
	if secret == nil {
		return nil, ErrNotFound
	}

	data := secret.Data
	if version == APIv2 {
		d, ok := data["data"].(map[string]any)
		if !ok || d == nil {
			return nil, fmt.Errorf("keysource: failed to read '%s': invalid K/V v2 format: missing 'data' entry", location)
		}
		data = d
	}
	value, ok := data[v.Name].(string)
	if !ok {
		return nil, fmt.Errorf("keysource: failed to read '%s': entry exists but contains no key", location)
	}
	return parse(value)
}

func (v *Vault) connect() (*vaultapi.Client, error) {
	tlsConfig := &vaultapi.TLSConfig{
		ClientKey:  v.PrivateKey,
		ClientCert: v.Certificate,
	}
	if v.CAPath != "" {
		stat, err := os.Stat(v.CAPath)
		if err != nil {
			return nil, fmt.Errorf("keysource: failed to open '%s': %v", v.CAPath, err)
		}
		if stat.IsDir() {
			tlsConfig.CAPath = v.CAPath
		} else {
			tlsConfig.CACert = v.CAPath
		}
	}

	config := vaultapi.DefaultConfig()
	config.Address = v.Endpoint
	if err := config.ConfigureTLS(tlsConfig); err != nil {
		return nil, err
	}
	client, err := vaultapi.NewClient(config)
	if err != nil {
		return nil, err
	}
	client.ClearToken()
	if v.Namespace != "" {
		// An empty namespace would still be sent as header.
		client.SetNamespace(v.Namespace)
	}
	return client, nil
}

func (v *Vault) login(ctx context.Context, client *vaultapi.Client) error {
	var (
		namespace, engine string
		body              map[string]any
	)
	switch {
	case v.AppRole != nil:
		namespace, engine = v.AppRole.Namespace, v.AppRole.Engine
		if engine == "" {
			engine = "approle"
		}
		body = map[string]any{
			"role_id":   v.AppRole.ID,
			"secret_id": v.AppRole.Secret,
		}
	default:
		namespace, engine = v.Kubernetes.Namespace, v.Kubernetes.Engine
		if engine == "" {
			engine = "kubernetes"
		}
		jwt := v.Kubernetes.JWT
		if strings.ContainsRune(jwt, '/') || strings.ContainsRune(jwt, os.PathSeparator) {
			b, err := os.ReadFile(jwt)
			if err != nil {
				return fmt.Errorf("keysource: failed to read vault kubernetes JWT: %v", err)
			}
			jwt = strings.TrimSpace(string(b))
		}
		body = map[string]any{
			"role": v.Kubernetes.Role,
			"jwt":  jwt,
		}
	}

	auth := client
	switch {
	case namespace == "/": // root namespace
		auth = client.WithNamespace("")
	case namespace != "":
		auth = client.WithNamespace(namespace)
	}
	secret, err := auth.Logical().WriteWithContext(ctx, path.Join("auth", engine, "login"), body)
	if err != nil {
		return fmt.Errorf("keysource: vault authentication failed: %v", err)
	}
	if secret == nil {
		return errors.New("keysource: vault authentication failed: no token returned")
	}
	token, err := secret.TokenID()
	if err != nil {
		return fmt.Errorf("keysource: vault authentication failed: %v", err)
	}
	client.SetToken(token)
	return nil
}

func (v *Vault) String() string { return "Hashicorp Vault: " + v.Endpoint }
