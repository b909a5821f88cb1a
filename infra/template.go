// Package infra turns an app's registration table into deployable
// infrastructure: a CloudFormation template with one DynamoDB table per
// entity and one Lambda function per registered function, plus the
// pipeline verbs that preview, apply and tear down the stack.
package infra

import (
	"fmt"

	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"

	"github.com/gantryhq/gantry"
)

// Options parameterize template rendering.
type Options struct {
	Description string
	// CodeBucket/CodeKey locate the packaged function binary.
	CodeBucket string
	CodeKey    string
	// RoleArn is the execution role attached to every function.
	RoleArn string
	// Runtime defaults to provided.al2023.
	Runtime string
}

// Template is a minimal CloudFormation document.
type Template struct {
	AWSTemplateFormatVersion string              `yaml:"AWSTemplateFormatVersion"`
	Description              string              `yaml:"Description,omitempty"`
	Resources                map[string]Resource `yaml:"Resources"`
}

// Resource is one CloudFormation resource.
type Resource struct {
	Type       string         `yaml:"Type"`
	Properties map[string]any `yaml:"Properties"`
}

// Build renders the app's functions and entities as a template.
func Build(app *gantry.App, opts Options) *Template {
	runtime := opts.Runtime
	if runtime == "" {
		runtime = "provided.al2023"
	}

	resources := make(map[string]Resource)
	for _, reg := range app.Entities() {
		def := reg.Definition
		name := app.TablePrefix() + def.TableName

		attrs := []map[string]any{
			{"AttributeName": def.PartitionKey.Name, "AttributeType": "S"},
		}
		schema := []map[string]any{
			{"AttributeName": def.PartitionKey.Name, "KeyType": "HASH"},
		}
		if def.HasSortKey() {
			attrs = append(attrs, map[string]any{"AttributeName": def.SortKey.Name, "AttributeType": "S"})
			schema = append(schema, map[string]any{"AttributeName": def.SortKey.Name, "KeyType": "RANGE"})
		}

		resources[strcase.ToCamel(def.TableName)+"Table"] = Resource{
			Type: "AWS::DynamoDB::Table",
			Properties: map[string]any{
				"TableName":            name,
				"AttributeDefinitions": attrs,
				"KeySchema":            schema,
				"BillingMode":          "PAY_PER_REQUEST",
			},
		}
	}

	for _, reg := range app.Functions(nil) {
		res := app.ResolvedResources(reg)
		resources[strcase.ToCamel(reg.Name)+"Function"] = Resource{
			Type: "AWS::Lambda::Function",
			Properties: map[string]any{
				"FunctionName": reg.Name,
				"Handler":      "bootstrap",
				"Runtime":      runtime,
				"Role":         opts.RoleArn,
				"MemorySize":   res.MemoryMB,
				"Timeout":      int(res.Timeout.Seconds()),
				"Code": map[string]any{
					"S3Bucket": opts.CodeBucket,
					"S3Key":    opts.CodeKey,
				},
				"Environment": map[string]any{
					"Variables": map[string]any{
						"GANTRY_FUNCTION":           reg.Name,
						"GANTRY_STORE_BACKEND":      "dynamo",
						"GANTRY_STORE_TABLE_PREFIX": app.TablePrefix(),
					},
				},
			},
		}
	}

	return &Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              opts.Description,
		Resources:                resources,
	}
}

// Marshal renders the template as YAML.
func (t *Template) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	return out, nil
}
