package synth

import (
	"fmt"
	"slices"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/naming"
)

// str renders a property value as a string, replacing placeholders with the
// token of the construct attribute they stand for.
func (r *renderer) str(v any) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return jsii.String(val)
	case stacktheory.Unknown:
		if token := r.attribute(val); token != nil {
			return token
		}
		return jsii.String(val.String())
	default:
		return jsii.String(fmt.Sprint(val))
	}
}

func (r *renderer) strs(v any) *[]*string {
	out := []*string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := r.str(item); s != nil {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range val {
			out = append(out, jsii.String(item))
		}
	case string:
		out = append(out, jsii.String(val))
	}
	return &out
}

// attribute returns the token for a node output, or nil when the node is not
// part of the stack.
func (r *renderer) attribute(u stacktheory.Unknown) *string {
	if b, ok := r.buckets[u.Node]; ok {
		switch u.Output {
		case "arn":
			return b.BucketArn()
		case "bucketName":
			return b.BucketName()
		case "domainName":
			return b.BucketDomainName()
		case "regionalDomainName":
			return b.BucketRegionalDomainName()
		case "websiteUrl":
			return b.BucketWebsiteUrl()
		}
	}
	if d, ok := r.distributions[u.Node]; ok {
		switch u.Output {
		case "id":
			return d.DistributionId()
		case "arn":
			return r.stack.FormatArn(&awscdk.ArnComponents{
				Service:      jsii.String("cloudfront"),
				Region:       jsii.String(""),
				Resource:     jsii.String("distribution"),
				ResourceName: d.DistributionId(),
			})
		case "domainName":
			return d.DistributionDomainName()
		}
	}
	if c, ok := r.certificates[u.Node]; ok && u.Output == "arn" {
		return c.CertificateArn()
	}
	if z, ok := r.zones[u.Node]; ok {
		switch u.Output {
		case "id":
			return z.HostedZoneId()
		case "zoneName":
			return z.ZoneName()
		case "nameServers":
			if created, ok := r.createdZones[u.Node]; ok {
				return awscdk.Fn_Join(jsii.String(","), created.HostedZoneNameServers())
			}
		}
	}
	if rec, ok := r.records[u.Node]; ok && u.Output == "fqdn" {
		return rec.DomainName()
	}
	if fn, ok := r.functions[u.Node]; ok {
		switch u.Output {
		case "arn":
			return fn.FunctionArn()
		case "name":
			return fn.FunctionName()
		case "invokeArn":
			return awscdk.Fn_Join(jsii.String(""), &[]*string{
				jsii.String("arn:"), awscdk.Aws_PARTITION(),
				jsii.String(":apigateway:"), awscdk.Aws_REGION(),
				jsii.String(":lambda:path/2015-03-31/functions/"), fn.FunctionArn(),
				jsii.String("/invocations"),
			})
		}
	}
	if api, ok := r.apis[u.Node]; ok {
		switch u.Output {
		case "id":
			return api.RestApiId()
		case "arn":
			return api.ArnForExecuteApi(nil, nil, nil)
		case "url":
			return api.Url()
		case "rootResourceId":
			return api.RestApiRootResourceId()
		}
	}
	if t, ok := r.tables[u.Node]; ok {
		switch u.Output {
		case "arn":
			return t.TableArn()
		case "name":
			return t.TableName()
		case "streamArn":
			return t.TableStreamArn()
		}
	}
	if s, ok := r.secrets[u.Node]; ok {
		switch u.Output {
		case "arn":
			return s.SecretArn()
		case "name":
			return s.SecretName()
		}
	}
	return nil
}

// outputs exports every resolvable output of the rendered nodes.
func (r *renderer) outputs(plan *stacktheory.Plan) {
	for _, op := range plan.Operations {
		if op.Operation == stacktheory.OperationDelete {
			continue
		}
		schema, ok := stacktheory.SchemaFor(op.Kind)
		if !ok {
			continue
		}
		names := slices.Clone(schema.Outputs)
		slices.Sort(names)
		for _, name := range names {
			token := r.attribute(stacktheory.Unknown{Node: op.NodeID, Output: name})
			if token == nil {
				continue
			}
			awscdk.NewCfnOutput(r.stack, jsii.String(naming.LogicalID(op.NodeID+"-"+name+"-output")), &awscdk.CfnOutputProps{
				Value:       token,
				Description: jsii.String(op.NodeID + "." + name),
			})
		}
	}
}
