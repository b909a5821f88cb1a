// Package lambdahost serves one function of an app on AWS Lambda. The
// running instance is pinned to a single function identity by the
// GANTRY_FUNCTION environment value; the API Gateway envelope differs
// from the local context but binding and error mapping are identical.
package lambdahost

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/gantryhq/gantry"
	"github.com/gantryhq/gantry/dispatch"
)

// SelectorEnv names the environment value that pins an instance to one
// registered function.
const SelectorEnv = "GANTRY_FUNCTION"

// HandlerFunc is the Lambda entrypoint shape for API Gateway proxy
// events.
type HandlerFunc func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Selected resolves the pinned function from the environment. A
// missing or unknown selector is a fatal startup condition.
func Selected(app *gantry.App) (*gantry.FunctionRegistration, error) {
	name := os.Getenv(SelectorEnv)
	if name == "" {
		return nil, fmt.Errorf("%s is not set: a host instance must name the registered function it serves", SelectorEnv)
	}
	reg, ok := app.Function(name)
	if !ok {
		return nil, fmt.Errorf("%s names unknown function %q", SelectorEnv, name)
	}
	return reg, nil
}

// Handler builds the Lambda entrypoint for one registration.
func Handler(app *gantry.App, reg *gantry.FunctionRegistration) HandlerFunc {
	d := dispatch.New(app)
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		body := []byte(event.Body)
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				return events.APIGatewayProxyResponse{
					StatusCode: 400,
					Headers:    map[string]string{"Content-Type": "application/json"},
					Body:       `{"error": "invalid base64 body"}`,
				}, nil
			}
			body = decoded
		}

		res := d.Call(ctx, reg, dispatch.Input{
			Method: event.HTTPMethod,
			Route:  event.PathParameters,
			Query:  event.QueryStringParameters,
			Body:   body,
		})
		return events.APIGatewayProxyResponse{
			StatusCode: res.Status,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       string(res.Body),
		}, nil
	}
}

// Start resolves the pinned function and hands control to the Lambda
// runtime. It returns only on a startup failure.
func Start(app *gantry.App) error {
	reg, err := Selected(app)
	if err != nil {
		return err
	}
	app.Logger().WithField("function", reg.Name).Info("lambda host pinned")
	lambda.Start(Handler(app, reg))
	return nil
}
