// Package synth renders plans as AWS CDK stacks.
package synth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/naming"
)

// Options configure synthesis.
type Options struct {
	// OutDir receives the cloud assembly. Defaults to "cdk.out".
	OutDir string
	// Account and Region pin the stack environment when set.
	Account string
	Region  string
	// AssetPath is the code directory used by every function. When empty a
	// placeholder bootstrap asset is generated.
	AssetPath string
}

// Synth renders the create and update operations of plan into a CDK stack
// and writes the cloud assembly. It returns the assembly directory.
// Deletions are implicit: resources absent from the stack are removed by
// CloudFormation on deploy.
func Synth(plan *stacktheory.Plan, opts Options) (dir string, err error) {
	if plan == nil {
		return "", errors.New("synth: plan is required")
	}
	if opts.OutDir == "" {
		opts.OutDir = "cdk.out"
	}
	if opts.AssetPath == "" {
		asset, cleanup, aerr := placeholderAsset()
		if aerr != nil {
			return "", aerr
		}
		defer cleanup()
		opts.AssetPath = asset
	}

	defer recoverJSII(&err)

	app := awscdk.NewApp(&awscdk.AppProps{Outdir: jsii.String(opts.OutDir)})
	if _, err := NewStack(app, plan, opts); err != nil {
		return "", err
	}
	assembly := app.Synth(nil)
	return *assembly.Directory(), nil
}

// NewStack adds a stack for plan to scope.
func NewStack(scope constructs.Construct, plan *stacktheory.Plan, opts Options) (stack awscdk.Stack, err error) {
	defer recoverJSII(&err)

	name := plan.Stack
	if name == "" {
		name = "stacktheory"
	}
	props := &awscdk.StackProps{
		StackName:   jsii.String(name),
		Description: jsii.String(fmt.Sprintf("%s (%d resources)", name, plan.Summary.Create+plan.Summary.Update)),
	}
	if opts.Account != "" || opts.Region != "" {
		env := &awscdk.Environment{}
		if opts.Account != "" {
			env.Account = jsii.String(opts.Account)
		}
		if opts.Region != "" {
			env.Region = jsii.String(opts.Region)
		}
		props.Env = env
	}
	stack = awscdk.NewStack(scope, jsii.String(naming.LogicalID(name)), props)
	awscdk.Tags_Of(stack).Add(jsii.String("stacktheory:stack"), jsii.String(name), nil)

	r := newRenderer(stack, opts)
	for _, op := range plan.Operations {
		if op.Operation == stacktheory.OperationDelete {
			continue
		}
		if err := r.render(op); err != nil {
			return nil, err
		}
	}
	r.outputs(plan)
	return stack, nil
}

func recoverJSII(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = fmt.Errorf("synth: %w", e)
			return
		}
		*err = fmt.Errorf("synth: %v", r)
	}
}

func placeholderAsset() (string, func(), error) {
	dir, err := os.MkdirTemp("", "stacktheory-asset-")
	if err != nil {
		return "", nil, fmt.Errorf("create placeholder asset: %w", err)
	}
	script := "#!/bin/sh\necho '{\"statusCode\":200,\"body\":\"ok\"}'\n"
	if err := os.WriteFile(filepath.Join(dir, "bootstrap"), []byte(script), 0o755); err != nil { //nolint:gosec // bootstrap must be executable
		_ = os.RemoveAll(dir)
		return "", nil, fmt.Errorf("create placeholder asset: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func stringProp(props stacktheory.Properties, key string) string {
	v, _ := props[key].(string)
	return strings.TrimSpace(v)
}

func numberProp(props stacktheory.Properties, key string) (float64, bool) {
	switch v := props[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func boolProp(props stacktheory.Properties, key string) bool {
	v, _ := props[key].(bool)
	return v
}
