// Package config loads runtime settings the way every execution
// context expects them: environment variables first (GANTRY_ prefix),
// optionally layered over a gantry.yaml file, with a .env file honored
// for local development.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/gantryhq/gantry"
)

// Settings holds all configuration for an app's execution contexts.
type Settings struct {
	Environment string
	Port        string

	Store  StoreSettings
	Deploy DeploySettings

	// FunctionOverrides is the outermost resource-option layer, keyed
	// by function name (`functions:` in gantry.yaml).
	FunctionOverrides map[string]gantry.ResourceOverride
}

// StoreSettings selects and namespaces the storage backend.
type StoreSettings struct {
	Backend     string
	Region      string
	TablePrefix string
}

// DeploySettings parameterize the infra pipeline.
type DeploySettings struct {
	StackName  string
	Region     string
	CodeBucket string
	CodeKey    string
	RoleArn    string
}

// Load reads settings from the environment and an optional gantry.yaml
// in the working directory.
func Load() (*Settings, error) {
	// .env files are a local development convenience
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("gantry")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.table_prefix", "")
	v.SetDefault("deploy.region", "us-east-1")

	v.SetConfigName("gantry")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read gantry.yaml: %w", err)
		}
	}

	settings := &Settings{
		Environment: v.GetString("environment"),
		Port:        v.GetString("port"),
		Store: StoreSettings{
			Backend:     v.GetString("store.backend"),
			Region:      v.GetString("store.region"),
			TablePrefix: v.GetString("store.table_prefix"),
		},
		Deploy: DeploySettings{
			StackName:  v.GetString("deploy.stack_name"),
			Region:     v.GetString("deploy.region"),
			CodeBucket: v.GetString("deploy.code_bucket"),
			CodeKey:    v.GetString("deploy.code_key"),
			RoleArn:    v.GetString("deploy.role_arn"),
		},
	}

	if v.IsSet("functions") {
		if err := v.UnmarshalKey("functions", &settings.FunctionOverrides); err != nil {
			return nil, fmt.Errorf("parse function overrides: %w", err)
		}
	}
	return settings, nil
}

// IsProduction reports whether the app runs with production settings.
func (s *Settings) IsProduction() bool {
	return s.Environment == "production"
}
