// Package cli provides the verb surface shared by every app binary:
// run the local HTTP server, inspect registrations, and drive the
// infrastructure pipeline.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/olekukonko/tablewriter"

	"github.com/gantryhq/gantry"
	"github.com/gantryhq/gantry/config"
	"github.com/gantryhq/gantry/depcheck"
	"github.com/gantryhq/gantry/httpd"
	"github.com/gantryhq/gantry/infra"
)

// Run dispatches a verb against an already-built app. The first arg is
// the verb; an empty arg list means "run".
func Run(ctx context.Context, app *gantry.App, settings *config.Settings, args []string, out io.Writer) error {
	verb := "run"
	if len(args) > 0 {
		verb = args[0]
	}

	switch verb {
	case "run":
		return runServer(ctx, app, settings)
	case "resources":
		// Inspection works even when the dependency graph is broken,
		// so no validation happens here.
		return printResources(app, out)
	case "preview":
		return runPreview(ctx, app, settings, out)
	case "deploy":
		return runDeploy(ctx, app, settings)
	case "destroy":
		return runDestroy(ctx, app, settings)
	default:
		return fmt.Errorf("unknown command %q (expected run, resources, preview, deploy or destroy)", verb)
	}
}

// Execute is the top of a main: it loads settings, wires signal
// handling and exits non-zero on failure.
func Execute(app *gantry.App) {
	settings, err := config.Load()
	if err != nil {
		app.Logger().WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, app, settings, os.Args[1:], os.Stdout); err != nil {
		app.Logger().WithError(err).Fatal("Command failed")
	}
}

func runServer(ctx context.Context, app *gantry.App, settings *config.Settings) error {
	if err := depcheck.Validate(app); err != nil {
		return err
	}

	app.Logger().WithField("port", settings.Port).Info("Starting HTTP server")
	return httpd.New(app).Run(ctx, ":"+settings.Port)
}

func printResources(app *gantry.App, out io.Writer) error {
	functions := tablewriter.NewWriter(out)
	functions.SetHeader([]string{"Function", "Method", "Path", "Memory (MB)", "Timeout"})
	for _, reg := range app.Functions(nil) {
		res := app.ResolvedResources(reg)
		functions.Append([]string{
			reg.Name,
			reg.Method,
			reg.Path,
			strconv.Itoa(res.MemoryMB),
			res.Timeout.String(),
		})
	}
	functions.Render()

	if entities := app.Entities(); len(entities) > 0 {
		fmt.Fprintln(out)
		tables := tablewriter.NewWriter(out)
		tables.SetHeader([]string{"Table", "Partition Key", "Sort Key"})
		for _, reg := range entities {
			sort := "-"
			if reg.Definition.HasSortKey() {
				sort = reg.Definition.SortKey.Name
			}
			tables.Append([]string{
				app.TablePrefix() + reg.Definition.TableName,
				reg.Definition.PartitionKey.Name,
				sort,
			})
		}
		tables.Render()
	}
	return nil
}

func runPreview(ctx context.Context, app *gantry.App, settings *config.Settings, out io.Writer) error {
	deployer, tmpl, err := buildPipeline(ctx, app, settings)
	if err != nil {
		return err
	}

	changes, err := deployer.Preview(ctx, settings.Deploy.StackName, tmpl)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(out, "No changes.")
		return nil
	}
	for _, c := range changes {
		fmt.Fprintln(out, c)
	}
	return nil
}

func runDeploy(ctx context.Context, app *gantry.App, settings *config.Settings) error {
	deployer, tmpl, err := buildPipeline(ctx, app, settings)
	if err != nil {
		return err
	}
	return deployer.Apply(ctx, settings.Deploy.StackName, tmpl)
}

func runDestroy(ctx context.Context, app *gantry.App, settings *config.Settings) error {
	deployer, _, err := buildPipeline(ctx, app, settings)
	if err != nil {
		return err
	}
	return deployer.Destroy(ctx, settings.Deploy.StackName)
}

func buildPipeline(ctx context.Context, app *gantry.App, settings *config.Settings) (*infra.Deployer, *infra.Template, error) {
	if err := depcheck.Validate(app); err != nil {
		return nil, nil, err
	}
	if settings.Deploy.StackName == "" {
		return nil, nil, fmt.Errorf("no stack name configured (set GANTRY_DEPLOY_STACK_NAME)")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(settings.Deploy.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("load AWS config: %w", err)
	}

	tmpl := infra.Build(app, infra.Options{
		Description: settings.Deploy.StackName + " (managed by gantry)",
		CodeBucket:  settings.Deploy.CodeBucket,
		CodeKey:     settings.Deploy.CodeKey,
		RoleArn:     settings.Deploy.RoleArn,
	})
	deployer := infra.NewDeployer(cloudformation.NewFromConfig(cfg), app.Logger())
	return deployer, tmpl, nil
}
