// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bankconf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/minio/bank"
	"github.com/minio/bank/internal/keysource"
	"gopkg.in/yaml.v3"
)

type ymlFile struct {
	Version string `yaml:"version"`

	Name env[string] `yaml:"name"`
	Addr env[string] `yaml:"address"`

	Byzantine env[int]           `yaml:"byzantine"`
	Timeout   env[time.Duration] `yaml:"timeout"`
	Replicas  []ymlReplica       `yaml:"replicas"`

	Database env[string] `yaml:"database"`

	TLS struct {
		PrivateKey  env[string] `yaml:"key"`
		Certificate env[string] `yaml:"cert"`
		CAPath      env[string] `yaml:"ca"`
		Password    env[string] `yaml:"password"`
	} `yaml:"tls"`

	Key ymlKeySource `yaml:"key"`

	Log struct {
		Error env[string] `yaml:"error"`
		Audit env[string] `yaml:"audit"`
	} `yaml:"log"`
}

type ymlClientFile struct {
	Version string `yaml:"version"`

	APIKey    env[string]        `yaml:"api_key"`
	Byzantine env[int]           `yaml:"byzantine"`
	Timeout   env[time.Duration] `yaml:"timeout"`
	Replicas  []ymlReplica       `yaml:"replicas"`

	TLS struct {
		CAPath env[string] `yaml:"ca"`
	} `yaml:"tls"`
}

type ymlReplica struct {
	Name      env[string] `yaml:"name"`
	Endpoint  env[string] `yaml:"endpoint"`
	PublicKey env[string] `yaml:"public_key"`
}

type ymlKeySource struct {
	File *struct {
		Path env[string] `yaml:"path"`
	} `yaml:"file"`

	AWS *struct {
		SecretsManager struct {
			Endpoint    env[string] `yaml:"endpoint"`
			Region      env[string] `yaml:"region"`
			Name        env[string] `yaml:"name"`
			Credentials struct {
				AccessKey    env[string] `yaml:"accesskey"`
				SecretKey    env[string] `yaml:"secretkey"`
				SessionToken env[string] `yaml:"token"`
			} `yaml:"credentials"`
		} `yaml:"secretsmanager"`
	} `yaml:"aws"`

	Vault *struct {
		Endpoint   env[string] `yaml:"endpoint"`
		Engine     env[string] `yaml:"engine"`
		APIVersion env[string] `yaml:"version"`
		Namespace  env[string] `yaml:"namespace"`
		Prefix     env[string] `yaml:"prefix"`
		Name       env[string] `yaml:"name"`

		AppRole *struct {
			Engine    env[string] `yaml:"engine"`
			Namespace env[string] `yaml:"namespace"`
			ID        env[string] `yaml:"id"`
			Secret    env[string] `yaml:"secret"`
		} `yaml:"approle"`

		Kubernetes *struct {
			Engine    env[string] `yaml:"engine"`
			Namespace env[string] `yaml:"namespace"`
			Role      env[string] `yaml:"role"`
			JWT       env[string] `yaml:"jwt"` // A JWT or a path to a file containing it
		} `yaml:"kubernetes"`

		TLS struct {
			PrivateKey  env[string] `yaml:"key"`
			Certificate env[string] `yaml:"cert"`
			CAPath      env[string] `yaml:"ca"`
		} `yaml:"tls"`
	} `yaml:"vault"`

	GCP *struct {
		SecretManager struct {
			ProjectID   env[string]   `yaml:"project_id"`
			Endpoint    env[string]   `yaml:"endpoint"`
			Name        env[string]   `yaml:"name"`
			Scopes      []env[string] `yaml:"scopes"`
			Credentials struct {
				Client   env[string] `yaml:"client_email"`
				ClientID env[string] `yaml:"client_id"`
				KeyID    env[string] `yaml:"private_key_id"`
				Key      env[string] `yaml:"private_key"`
			} `yaml:"credentials"`
		} `yaml:"secretmanager"`
	} `yaml:"gcp"`

	Azure *struct {
		KeyVault struct {
			Endpoint    env[string] `yaml:"endpoint"`
			Name        env[string] `yaml:"name"`
			Version     env[string] `yaml:"version"`
			Credentials *struct {
				TenantID env[string] `yaml:"tenant_id"`
				ClientID env[string] `yaml:"client_id"`
				Secret   env[string] `yaml:"client_secret"`
			} `yaml:"credentials"`
			ManagedIdentity *struct {
				ClientID env[string] `yaml:"client_id"`
			} `yaml:"managed_identity"`
		} `yaml:"keyvault"`
	} `yaml:"azure"`
}

func findVersion(root *yaml.Node) (string, error) {
	if root == nil {
		return "", errors.New("bankconf: invalid config: root not found")
	}
	if root.Kind != yaml.DocumentNode {
		return "", errors.New("bankconf: invalid config: not document node")
	}
	if len(root.Content) != 1 {
		return "", errors.New("bankconf: invalid config: invalid document node")
	}

	doc := root.Content[0]
	for i, n := range doc.Content {
		if n.Value == "version" {
			if n.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("bankconf: invalid config: invalid version in line '%d'", n.Line)
			}
			if i == len(doc.Content)-1 {
				return "", fmt.Errorf("bankconf: invalid config: invalid version in line '%d'", n.Line)
			}
			v := doc.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("bankconf: invalid config: invalid version in line '%d'", v.Line)
			}
			return v.Value, nil
		}
	}
	return "", nil
}

func ymlToServerConfig(y *ymlFile) (*File, error) {
	if y.Name.Value == "" {
		return nil, errors.New("bankconf: invalid config: no replica name specified")
	}
	if y.Timeout.Value < 0 {
		return nil, errors.New("bankconf: invalid timeout: timeout is negative")
	}
	replicas, err := ymlToReplicas(y.Byzantine.Value, y.Replicas)
	if err != nil {
		return nil, err
	}
	var found bool
	for _, r := range replicas {
		if r.Name == y.Name.Value {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("bankconf: invalid config: replica '%s' is not part of the replicas", y.Name.Value)
	}

	if y.TLS.PrivateKey.Value != "" && y.TLS.Certificate.Value == "" {
		return nil, errors.New("bankconf: invalid tls config: no TLS certificate provided")
	}
	if y.TLS.PrivateKey.Value == "" && y.TLS.Certificate.Value != "" {
		return nil, errors.New("bankconf: invalid tls config: no TLS private key provided")
	}
	if y.TLS.PrivateKey.Value == "" && (y.TLS.CAPath.Value != "" || y.TLS.Password.Value != "") {
		return nil, errors.New("bankconf: invalid tls config: no TLS private key and certificate provided")
	}

	errLevel, err := parseLogLevel(y.Log.Error.Value)
	if err != nil {
		return nil, err
	}
	auditLevel, err := parseLogLevel(y.Log.Audit.Value)
	if err != nil {
		return nil, err
	}

	source, err := ymlToKeySource(&y.Key)
	if err != nil {
		return nil, err
	}

	c := &File{
		Addr:      y.Addr.Value,
		Name:      y.Name.Value,
		Byzantine: y.Byzantine.Value,
		Replicas:  replicas,
		Timeout:   y.Timeout.Value,
		Database:  y.Database.Value,
		Key:       source,
		Log: &LogConfig{
			ErrLevel:   errLevel,
			AuditLevel: auditLevel,
		},
	}
	if y.TLS.PrivateKey.Value != "" {
		c.TLS = &TLSConfig{
			PrivateKey:  y.TLS.PrivateKey.Value,
			Certificate: y.TLS.Certificate.Value,
			Password:    y.TLS.Password.Value,
			CAPath:      y.TLS.CAPath.Value,
		}
	}
	return c, nil
}

func ymlToClientConfig(y *ymlClientFile) (*ClientFile, error) {
	if y.Timeout.Value < 0 {
		return nil, errors.New("bankconf: invalid timeout: timeout is negative")
	}
	replicas, err := ymlToReplicas(y.Byzantine.Value, y.Replicas)
	if err != nil {
		return nil, err
	}

	var key bank.APIKey
	if y.APIKey.Value != "" {
		if key, err = bank.ParseAPIKey(y.APIKey.Value); err != nil {
			return nil, fmt.Errorf("bankconf: invalid api_key: %v", err)
		}
	}
	return &ClientFile{
		APIKey:    key,
		Byzantine: y.Byzantine.Value,
		Replicas:  replicas,
		Timeout:   y.Timeout.Value,
		CAPath:    y.TLS.CAPath.Value,
	}, nil
}

func ymlToReplicas(f int, y []ymlReplica) ([]Replica, error) {
	if f < 0 {
		return nil, errors.New("bankconf: invalid config: byzantine is negative")
	}
	if n := 3*f + 1; len(y) != n {
		return nil, fmt.Errorf("bankconf: invalid config: byzantine '%d' requires %d replicas but %d are specified", f, n, len(y))
	}

	replicas := make([]Replica, 0, len(y))
	names := make(map[string]struct{}, len(y))
	for i, r := range y {
		if r.Name.Value == "" {
			return nil, fmt.Errorf("bankconf: invalid replica '%d': no name specified", i)
		}
		if _, ok := names[r.Name.Value]; ok {
			return nil, fmt.Errorf("bankconf: invalid replica '%s': specified more than once", r.Name.Value)
		}
		names[r.Name.Value] = struct{}{}

		addr, err := bank.ParseAddr(r.Endpoint.Value)
		if err != nil {
			return nil, fmt.Errorf("bankconf: invalid replica '%s': %v", r.Name.Value, err)
		}
		pub, err := bank.ParsePublicKey(r.PublicKey.Value)
		if err != nil {
			return nil, fmt.Errorf("bankconf: invalid replica '%s': %v", r.Name.Value, err)
		}
		replicas = append(replicas, Replica{
			Name:      r.Name.Value,
			Endpoint:  addr,
			PublicKey: pub,
		})
	}
	return replicas, nil
}

func ymlToKeySource(y *ymlKeySource) (keysource.Source, error) {
	var source keysource.Source

	if y.File != nil {
		if y.File.Path.Value == "" {
			return nil, errors.New("bankconf: invalid file key source: no path specified")
		}
		source = &keysource.File{Path: y.File.Path.Value}
	}

	// AWS SecretsManager
	if y.AWS != nil {
		if source != nil {
			return nil, errors.New("bankconf: invalid key config: more than one key source specified")
		}
		sm := &y.AWS.SecretsManager
		if sm.Endpoint.Value == "" {
			return nil, errors.New("bankconf: invalid aws key source: no endpoint specified")
		}
		if sm.Region.Value == "" {
			return nil, errors.New("bankconf: invalid aws key source: no region specified")
		}
		if sm.Name.Value == "" {
			return nil, errors.New("bankconf: invalid aws key source: no secret name specified")
		}
		source = &keysource.SecretsManager{
			Addr:   sm.Endpoint.Value,
			Region: sm.Region.Value,
			Name:   sm.Name.Value,
			Login: keysource.AWSCredentials{
				AccessKey:    sm.Credentials.AccessKey.Value,
				SecretKey:    sm.Credentials.SecretKey.Value,
				SessionToken: sm.Credentials.SessionToken.Value,
			},
		}
	}

	// Hashicorp Vault
	if y.Vault != nil {
		if source != nil {
			return nil, errors.New("bankconf: invalid key config: more than one key source specified")
		}
		if y.Vault.Endpoint.Value == "" {
			return nil, errors.New("bankconf: invalid vault key source: no endpoint specified")
		}
		if y.Vault.Name.Value == "" {
			return nil, errors.New("bankconf: invalid vault key source: no name specified")
		}
		if y.Vault.AppRole == nil && y.Vault.Kubernetes == nil {
			return nil, errors.New("bankconf: invalid vault key source: no authentication method specified")
		}
		if y.Vault.AppRole != nil && y.Vault.Kubernetes != nil {
			return nil, errors.New("bankconf: invalid vault key source: more than one authentication method specified")
		}
		if v := y.Vault.APIVersion.Value; v != "" && v != keysource.APIv1 && v != keysource.APIv2 {
			return nil, fmt.Errorf("bankconf: invalid vault key source: invalid K/V API version '%s'", v)
		}
		if y.Vault.TLS.PrivateKey.Value != "" && y.Vault.TLS.Certificate.Value == "" {
			return nil, errors.New("bankconf: invalid vault key source: invalid tls config: no TLS certificate provided")
		}
		if y.Vault.TLS.PrivateKey.Value == "" && y.Vault.TLS.Certificate.Value != "" {
			return nil, errors.New("bankconf: invalid vault key source: invalid tls config: no TLS private key provided")
		}

		s := &keysource.Vault{
			Endpoint:    y.Vault.Endpoint.Value,
			Engine:      y.Vault.Engine.Value,
			APIVersion:  y.Vault.APIVersion.Value,
			Namespace:   y.Vault.Namespace.Value,
			Prefix:      y.Vault.Prefix.Value,
			Name:        y.Vault.Name.Value,
			PrivateKey:  y.Vault.TLS.PrivateKey.Value,
			Certificate: y.Vault.TLS.Certificate.Value,
			CAPath:      y.Vault.TLS.CAPath.Value,
		}
		if y.Vault.AppRole != nil {
			if y.Vault.AppRole.ID.Value == "" {
				return nil, errors.New("bankconf: invalid vault key source: invalid approle config: no approle ID specified")
			}
			if y.Vault.AppRole.Secret.Value == "" {
				return nil, errors.New("bankconf: invalid vault key source: invalid approle config: no approle secret specified")
			}
			s.AppRole = &keysource.VaultAppRole{
				Engine:    y.Vault.AppRole.Engine.Value,
				Namespace: y.Vault.AppRole.Namespace.Value,
				ID:        y.Vault.AppRole.ID.Value,
				Secret:    y.Vault.AppRole.Secret.Value,
			}
		}
		if y.Vault.Kubernetes != nil {
			if y.Vault.Kubernetes.JWT.Value == "" {
				return nil, errors.New("bankconf: invalid vault key source: invalid kubernetes config: no JWT specified")
			}
			s.Kubernetes = &keysource.VaultKubernetes{
				Engine:    y.Vault.Kubernetes.Engine.Value,
				Namespace: y.Vault.Kubernetes.Namespace.Value,
				Role:      y.Vault.Kubernetes.Role.Value,
				JWT:       y.Vault.Kubernetes.JWT.Value,
			}
		}
		source = s
	}

	// GCP SecretManager
	if y.GCP != nil {
		if source != nil {
			return nil, errors.New("bankconf: invalid key config: more than one key source specified")
		}
		sm := &y.GCP.SecretManager
		if sm.ProjectID.Value == "" {
			return nil, errors.New("bankconf: invalid gcp key source: no project ID specified")
		}
		if sm.Name.Value == "" {
			return nil, errors.New("bankconf: invalid gcp key source: no secret name specified")
		}
		var scopes []string
		for _, scope := range sm.Scopes {
			if scope.Value != "" {
				scopes = append(scopes, scope.Value)
			}
		}
		source = &keysource.GCPSecretManager{
			Endpoint:  sm.Endpoint.Value,
			ProjectID: sm.ProjectID.Value,
			Name:      sm.Name.Value,
			Scopes:    scopes,
			Credentials: keysource.GCPCredentials{
				Client:   sm.Credentials.Client.Value,
				ClientID: sm.Credentials.ClientID.Value,
				KeyID:    sm.Credentials.KeyID.Value,
				Key:      sm.Credentials.Key.Value,
			},
		}
	}

	// Azure KeyVault
	if y.Azure != nil {
		if source != nil {
			return nil, errors.New("bankconf: invalid key config: more than one key source specified")
		}
		kv := &y.Azure.KeyVault
		if kv.Endpoint.Value == "" {
			return nil, errors.New("bankconf: invalid azure key source: no endpoint specified")
		}
		if kv.Name.Value == "" {
			return nil, errors.New("bankconf: invalid azure key source: no secret name specified")
		}
		if kv.Credentials == nil && kv.ManagedIdentity == nil {
			return nil, errors.New("bankconf: invalid azure key source: no authentication method specified")
		}
		if kv.Credentials != nil && kv.ManagedIdentity != nil {
			return nil, errors.New("bankconf: invalid azure key source: more than one authentication method specified")
		}

		s := &keysource.AzureKeyVault{
			Endpoint: kv.Endpoint.Value,
			Name:     kv.Name.Value,
			Version:  kv.Version.Value,
		}
		if c := kv.Credentials; c != nil {
			if c.TenantID.Value == "" || c.ClientID.Value == "" || c.Secret.Value == "" {
				return nil, errors.New("bankconf: invalid azure key source: incomplete client credentials")
			}
			s.Credentials = &keysource.AzureCredentials{
				TenantID: c.TenantID.Value,
				ClientID: c.ClientID.Value,
				Secret:   c.Secret.Value,
			}
		}
		if m := kv.ManagedIdentity; m != nil {
			s.ManagedIdentity = &keysource.AzureManagedIdentity{ClientID: m.ClientID.Value}
		}
		source = s
	}

	if source == nil {
		return nil, errors.New("bankconf: no key source specified")
	}
	return source, nil
}

type env[T any] struct {
	Var   string
	Value T
}

func (r env[T]) MarshalYAML() (any, error) {
	if env := strings.TrimSpace(r.Var); env != "" {
		switch p, s := strings.HasPrefix(env, "${"), strings.HasSuffix(env, "}"); {
		case p && s:
			return env, nil
		case !p && !s:
			return "${" + env + "}", nil
		default:
			return nil, fmt.Errorf("bankconf: invalid env. variable reference '%s'", r.Var)
		}
	}
	return r.Value, nil
}

func (r *env[T]) UnmarshalYAML(node *yaml.Node) error {
	var env string
	if v := strings.TrimSpace(node.Value); strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		env = strings.TrimSpace(v[2 : len(v)-1])
		v, ok := os.LookupEnv(env)
		if !ok {
			return fmt.Errorf("bankconf: referenced env. variable '%s' in line '%d' not found", env, node.Line)
		}
		node.Value = v
	}

	var v T
	if err := node.Decode(&v); err != nil {
		return err
	}
	r.Var = env
	r.Value = v
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	const (
		LevelDebug = "DEBUG"
		LevelInfo  = "INFO"
		LevelWarn  = "WARN"
		LevelError = "ERROR"

		LevelOn  = "ON"  // LevelInfo
		LevelOff = "OFF" // LevelError+1
	)
	if s = strings.TrimSpace(strings.ToUpper(s)); s == "" {
		return slog.LevelInfo, nil
	}
	if s == LevelOn {
		return slog.LevelInfo, nil
	}
	if s == LevelOff {
		return slog.LevelError + 1, nil
	}

	parseLevel := func(val string, base slog.Level) (slog.Level, error) {
		level, suffix, ok := strings.Cut(val, "+")
		if !ok || strings.TrimSpace(level) != base.String() {
			return 0, fmt.Errorf("bankconf: invalid log level '%s'", val)
		}

		n, err := strconv.Atoi(suffix)
		if err != nil {
			return 0, fmt.Errorf("bankconf: invalid log level suffix '%s': %v", suffix, err)
		}
		return base + slog.Level(n), nil
	}

	switch {
	case strings.HasPrefix(s, LevelDebug):
		if s == LevelDebug {
			return slog.LevelDebug, nil
		}
		return parseLevel(s, slog.LevelDebug)
	case strings.HasPrefix(s, LevelInfo):
		if s == LevelInfo {
			return slog.LevelInfo, nil
		}
		return parseLevel(s, slog.LevelInfo)
	case strings.HasPrefix(s, LevelWarn):
		if s == LevelWarn {
			return slog.LevelWarn, nil
		}
		return parseLevel(s, slog.LevelWarn)
	case strings.HasPrefix(s, LevelError):
		if s == LevelError {
			return slog.LevelError, nil
		}
		return parseLevel(s, slog.LevelError)
	default:
		return 0, fmt.Errorf("bankconf: invalid log level '%s'", s)
	}
}
