package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageRender    Stage = "render"
	StageChangeSet Stage = "change-set"
	StageExecute   Stage = "execute"
	StageDestroy   Stage = "destroy"
)

// StageError tags a pipeline failure with its stage. Pipeline failures
// are fatal; nothing is retried internally.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("infra stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// CFNClient is the slice of the CloudFormation API the deployer uses.
type CFNClient interface {
	CreateChangeSet(ctx context.Context, params *cloudformation.CreateChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateChangeSetOutput, error)
	DescribeChangeSet(ctx context.Context, params *cloudformation.DescribeChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeChangeSetOutput, error)
	ExecuteChangeSet(ctx context.Context, params *cloudformation.ExecuteChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ExecuteChangeSetOutput, error)
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// Deployer drives the stack lifecycle.
type Deployer struct {
	client CFNClient
	log    *logrus.Logger
	poll   time.Duration
}

// NewDeployer wraps a CloudFormation client.
func NewDeployer(client CFNClient, log *logrus.Logger) *Deployer {
	return &Deployer{client: client, log: log, poll: 3 * time.Second}
}

// Change summarizes one planned resource change.
type Change struct {
	Action   string
	Resource string
	Type     string
}

func (c Change) String() string {
	return fmt.Sprintf("%-8s %s (%s)", c.Action, c.Resource, c.Type)
}

// Preview creates a change set and reports the planned changes without
// executing anything.
func (d *Deployer) Preview(ctx context.Context, stack string, tmpl *Template) ([]Change, error) {
	name, err := d.createChangeSet(ctx, stack, tmpl)
	if err != nil {
		return nil, err
	}
	out, err := d.waitChangeSet(ctx, stack, name)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(out.Changes))
	for _, c := range out.Changes {
		rc := c.ResourceChange
		if rc == nil {
			continue
		}
		changes = append(changes, Change{
			Action:   string(rc.Action),
			Resource: aws.ToString(rc.LogicalResourceId),
			Type:     aws.ToString(rc.ResourceType),
		})
	}
	return changes, nil
}

// Apply creates a change set, executes it and waits for the stack to
// settle.
func (d *Deployer) Apply(ctx context.Context, stack string, tmpl *Template) error {
	name, err := d.createChangeSet(ctx, stack, tmpl)
	if err != nil {
		return err
	}
	if _, err := d.waitChangeSet(ctx, stack, name); err != nil {
		return err
	}

	d.log.WithField("stack", stack).Info("executing change set")
	if _, err := d.client.ExecuteChangeSet(ctx, &cloudformation.ExecuteChangeSetInput{
		StackName:     aws.String(stack),
		ChangeSetName: aws.String(name),
	}); err != nil {
		return &StageError{Stage: StageExecute, Err: err}
	}
	return d.waitStack(ctx, stack)
}

// Destroy deletes the stack and waits until it is gone.
func (d *Deployer) Destroy(ctx context.Context, stack string) error {
	d.log.WithField("stack", stack).Info("deleting stack")
	if _, err := d.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(stack),
	}); err != nil {
		return &StageError{Stage: StageDestroy, Err: err}
	}

	for {
		out, err := d.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
			StackName: aws.String(stack),
		})
		if err != nil || len(out.Stacks) == 0 {
			// the stack no longer exists
			return nil
		}
		status := out.Stacks[0].StackStatus
		if status == types.StackStatusDeleteComplete {
			return nil
		}
		if status == types.StackStatusDeleteFailed {
			return &StageError{Stage: StageDestroy, Err: fmt.Errorf("stack %s delete failed", stack)}
		}
		if err := d.sleep(ctx); err != nil {
			return &StageError{Stage: StageDestroy, Err: err}
		}
	}
}

func (d *Deployer) createChangeSet(ctx context.Context, stack string, tmpl *Template) (string, error) {
	body, err := tmpl.Marshal()
	if err != nil {
		return "", &StageError{Stage: StageRender, Err: err}
	}

	changeSetType := types.ChangeSetTypeUpdate
	if !d.stackExists(ctx, stack) {
		changeSetType = types.ChangeSetTypeCreate
	}

	name := "gantry-" + uuid.New().String()
	_, err = d.client.CreateChangeSet(ctx, &cloudformation.CreateChangeSetInput{
		StackName:     aws.String(stack),
		ChangeSetName: aws.String(name),
		TemplateBody:  aws.String(string(body)),
		ChangeSetType: changeSetType,
		Capabilities:  []types.Capability{types.CapabilityCapabilityIam},
	})
	if err != nil {
		return "", &StageError{Stage: StageChangeSet, Err: err}
	}
	return name, nil
}

func (d *Deployer) waitChangeSet(ctx context.Context, stack, name string) (*cloudformation.DescribeChangeSetOutput, error) {
	for {
		out, err := d.client.DescribeChangeSet(ctx, &cloudformation.DescribeChangeSetInput{
			StackName:     aws.String(stack),
			ChangeSetName: aws.String(name),
		})
		if err != nil {
			return nil, &StageError{Stage: StageChangeSet, Err: err}
		}
		switch out.Status {
		case types.ChangeSetStatusCreateComplete:
			return out, nil
		case types.ChangeSetStatusFailed:
			return nil, &StageError{Stage: StageChangeSet,
				Err: fmt.Errorf("change set failed: %s", aws.ToString(out.StatusReason))}
		}
		if err := d.sleep(ctx); err != nil {
			return nil, &StageError{Stage: StageChangeSet, Err: err}
		}
	}
}

func (d *Deployer) waitStack(ctx context.Context, stack string) error {
	for {
		out, err := d.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
			StackName: aws.String(stack),
		})
		if err != nil {
			return &StageError{Stage: StageExecute, Err: err}
		}
		if len(out.Stacks) == 0 {
			return &StageError{Stage: StageExecute, Err: fmt.Errorf("stack %s disappeared", stack)}
		}
		status := string(out.Stacks[0].StackStatus)
		switch {
		case strings.HasSuffix(status, "_COMPLETE") && !strings.Contains(status, "ROLLBACK"):
			return nil
		case strings.Contains(status, "FAILED") || strings.Contains(status, "ROLLBACK"):
			return &StageError{Stage: StageExecute, Err: fmt.Errorf("stack %s ended in %s", stack, status)}
		}
		if err := d.sleep(ctx); err != nil {
			return &StageError{Stage: StageExecute, Err: err}
		}
	}
}

func (d *Deployer) stackExists(ctx context.Context, stack string) bool {
	out, err := d.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stack),
	})
	if err != nil || len(out.Stacks) == 0 {
		return false
	}
	// a stack left in REVIEW_IN_PROGRESS by a previous preview counts
	// as not yet created
	return out.Stacks[0].StackStatus != types.StackStatusReviewInProgress
}

func (d *Deployer) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.poll):
		return nil
	}
}
