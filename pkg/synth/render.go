package synth

import (
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscertificatemanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudfront"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudfrontorigins"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambdaeventsources"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53targets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/jsii-runtime-go"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/naming"
)

// renderer turns operations into constructs. Operations arrive in plan order,
// so every construct a node references already exists.
type renderer struct {
	stack awscdk.Stack
	opts  Options

	buckets       map[string]awss3.Bucket
	distributions map[string]awscloudfront.Distribution
	certificates  map[string]awscertificatemanager.ICertificate
	zones         map[string]awsroute53.IHostedZone
	createdZones  map[string]awsroute53.PublicHostedZone
	records       map[string]awsroute53.ARecord
	functions     map[string]awslambda.Function
	apis          map[string]awsapigateway.LambdaRestApi
	tables        map[string]awsdynamodb.Table
	secrets       map[string]awssecretsmanager.Secret
}

func newRenderer(stack awscdk.Stack, opts Options) *renderer {
	return &renderer{
		stack:         stack,
		opts:          opts,
		buckets:       map[string]awss3.Bucket{},
		distributions: map[string]awscloudfront.Distribution{},
		certificates:  map[string]awscertificatemanager.ICertificate{},
		zones:         map[string]awsroute53.IHostedZone{},
		createdZones:  map[string]awsroute53.PublicHostedZone{},
		records:       map[string]awsroute53.ARecord{},
		functions:     map[string]awslambda.Function{},
		apis:          map[string]awsapigateway.LambdaRestApi{},
		tables:        map[string]awsdynamodb.Table{},
		secrets:       map[string]awssecretsmanager.Secret{},
	}
}

func (r *renderer) render(op stacktheory.ProvisionOperation) error {
	id := jsii.String(naming.LogicalID(op.NodeID))
	props := op.ResolvedProperties

	switch op.Kind {
	case stacktheory.KindBucket:
		r.buckets[op.NodeID] = r.bucket(id, props)
	case stacktheory.KindCertificate:
		r.certificates[op.NodeID] = r.certificate(id, props)
	case stacktheory.KindHostedZone:
		r.hostedZone(op.NodeID, id, props)
	case stacktheory.KindDistribution:
		dist, err := r.distribution(id, props)
		if err != nil {
			return fmt.Errorf("%s: %w", op.NodeID, err)
		}
		r.distributions[op.NodeID] = dist
	case stacktheory.KindRecord:
		record, err := r.record(id, props)
		if err != nil {
			return fmt.Errorf("%s: %w", op.NodeID, err)
		}
		r.records[op.NodeID] = record
	case stacktheory.KindTable:
		r.tables[op.NodeID] = r.table(id, props)
	case stacktheory.KindSecret:
		r.secrets[op.NodeID] = r.secret(id, props)
	case stacktheory.KindFunction:
		r.functions[op.NodeID] = r.function(id, props)
	case stacktheory.KindRestAPI:
		api, err := r.restAPI(id, props)
		if err != nil {
			return fmt.Errorf("%s: %w", op.NodeID, err)
		}
		r.apis[op.NodeID] = api
	default:
		return &stacktheory.ValidationError{NodeID: op.NodeID, Field: "kind", Message: fmt.Sprintf("unsupported kind %q", op.Kind)}
	}
	return nil
}

func (r *renderer) bucket(id *string, props stacktheory.Properties) awss3.Bucket {
	bp := &awss3.BucketProps{
		BucketName:    r.str(props["bucketName"]),
		Encryption:    awss3.BucketEncryption_S3_MANAGED,
		EnforceSSL:    jsii.Bool(true),
		RemovalPolicy: awscdk.RemovalPolicy_RETAIN,
	}
	if boolProp(props, "blockPublicAccess") {
		bp.BlockPublicAccess = awss3.BlockPublicAccess_BLOCK_ALL()
	}
	if doc := stringProp(props, "websiteIndexDocument"); doc != "" && !boolProp(props, "blockPublicAccess") {
		bp.WebsiteIndexDocument = jsii.String(doc)
		if errDoc := stringProp(props, "websiteErrorDocument"); errDoc != "" {
			bp.WebsiteErrorDocument = jsii.String(errDoc)
		}
	}
	return awss3.NewBucket(r.stack, id, bp)
}

func (r *renderer) certificate(id *string, props stacktheory.Properties) awscertificatemanager.ICertificate {
	if arn := stringProp(props, "certificateArn"); arn != "" {
		return awscertificatemanager.Certificate_FromCertificateArn(r.stack, id, jsii.String(arn))
	}
	cp := &awscertificatemanager.CertificateProps{
		DomainName: r.str(props["domainName"]),
		Validation: awscertificatemanager.CertificateValidation_FromDns(r.zone(props["zoneId"], "")),
	}
	if sans := r.strs(props["subjectAlternativeNames"]); len(*sans) > 0 {
		cp.SubjectAlternativeNames = sans
	}
	if strings.EqualFold(stringProp(props, "validation"), "EMAIL") {
		cp.Validation = awscertificatemanager.CertificateValidation_FromEmail(nil)
	}
	return awscertificatemanager.NewCertificate(r.stack, id, cp)
}

func (r *renderer) hostedZone(nodeID string, id *string, props stacktheory.Properties) {
	name := r.str(props["zoneName"])
	if zoneID := stringProp(props, "hostedZoneId"); zoneID != "" {
		r.zones[nodeID] = awsroute53.HostedZone_FromHostedZoneAttributes(r.stack, id, &awsroute53.HostedZoneAttributes{
			HostedZoneId: jsii.String(zoneID),
			ZoneName:     name,
		})
		return
	}
	zone := awsroute53.NewPublicHostedZone(r.stack, id, &awsroute53.PublicHostedZoneProps{ZoneName: name})
	r.zones[nodeID] = zone
	r.createdZones[nodeID] = zone
}

func (r *renderer) distribution(id *string, props stacktheory.Properties) (awscloudfront.Distribution, error) {
	origins, _ := props["origins"].([]any)
	if len(origins) == 0 {
		return nil, &stacktheory.ValidationError{Field: "origins", Message: "at least one origin is required"}
	}

	dp := &awscloudfront.DistributionProps{
		DefaultBehavior: &awscloudfront.BehaviorOptions{
			Origin:               r.origin(origins[0]),
			ViewerProtocolPolicy: awscloudfront.ViewerProtocolPolicy_REDIRECT_TO_HTTPS,
		},
	}
	if root := stringProp(props, "defaultRootObject"); root != "" {
		dp.DefaultRootObject = jsii.String(root)
	}
	if cert := r.certificateRef(props["certificate"]); cert != nil {
		dp.Certificate = cert
		if aliases := r.strs(props["aliases"]); len(*aliases) > 0 {
			dp.DomainNames = aliases
		}
	}

	behaviors := map[string]*awscloudfront.BehaviorOptions{}
	for i, extra := range origins[1:] {
		behaviors[fmt.Sprintf("/origin-%d/*", i+1)] = &awscloudfront.BehaviorOptions{Origin: r.origin(extra)}
	}
	if api, ok := props["apiOrigin"]; ok {
		behaviors["/api/*"] = &awscloudfront.BehaviorOptions{
			Origin:               r.origin(api),
			AllowedMethods:       awscloudfront.AllowedMethods_ALLOW_ALL(),
			CachePolicy:          awscloudfront.CachePolicy_CACHING_DISABLED(),
			ViewerProtocolPolicy: awscloudfront.ViewerProtocolPolicy_HTTPS_ONLY,
		}
	}
	if len(behaviors) > 0 {
		dp.AdditionalBehaviors = &behaviors
	}
	return awscloudfront.NewDistribution(r.stack, id, dp), nil
}

// origin maps an origin value to a CloudFront origin: buckets get origin
// access control, rest APIs their stage, anything else an HTTP origin.
func (r *renderer) origin(v any) awscloudfront.IOrigin {
	if u, ok := v.(stacktheory.Unknown); ok {
		if bucket, ok := r.buckets[u.Node]; ok {
			return awscloudfrontorigins.S3BucketOrigin_WithOriginAccessControl(bucket, nil)
		}
		if api, ok := r.apis[u.Node]; ok {
			return awscloudfrontorigins.NewRestApiOrigin(api, nil)
		}
	}
	domain := r.str(v)
	if s, ok := v.(string); ok {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
		domain = jsii.String(strings.SplitN(s, "/", 2)[0])
	}
	return awscloudfrontorigins.NewHttpOrigin(domain, nil)
}

func (r *renderer) certificateRef(v any) awscertificatemanager.ICertificate {
	switch val := v.(type) {
	case stacktheory.Unknown:
		return r.certificates[val.Node]
	case string:
		if val == "" {
			return nil
		}
		key := "certificate-" + val
		if cert, ok := r.certificates[key]; ok {
			return cert
		}
		cert := awscertificatemanager.Certificate_FromCertificateArn(r.stack, jsii.String(naming.LogicalID(key)), jsii.String(val))
		r.certificates[key] = cert
		return cert
	}
	return nil
}

// zone resolves a zone reference. Literal ids are imported under zoneName.
func (r *renderer) zone(v any, zoneName string) awsroute53.IHostedZone {
	switch val := v.(type) {
	case stacktheory.Unknown:
		return r.zones[val.Node]
	case string:
		if val == "" {
			return nil
		}
		key := "zone-" + val
		if zone, ok := r.zones[key]; ok {
			return zone
		}
		id := jsii.String(naming.LogicalID(key))
		var zone awsroute53.IHostedZone
		if zoneName == "" {
			zone = awsroute53.HostedZone_FromHostedZoneId(r.stack, id, jsii.String(val))
		} else {
			zone = awsroute53.HostedZone_FromHostedZoneAttributes(r.stack, id, &awsroute53.HostedZoneAttributes{
				HostedZoneId: jsii.String(val),
				ZoneName:     jsii.String(zoneName),
			})
		}
		r.zones[key] = zone
		return zone
	}
	return nil
}

func (r *renderer) record(id *string, props stacktheory.Properties) (awsroute53.ARecord, error) {
	recordName := stringProp(props, "recordName")
	zone := r.zone(props["zoneId"], recordName)
	if zone == nil {
		return nil, &stacktheory.ValidationError{Field: "zoneId", Message: "hosted zone could not be resolved"}
	}

	var target awsroute53.RecordTarget
	switch val := props["target"].(type) {
	case stacktheory.Unknown:
		dist, ok := r.distributions[val.Node]
		if !ok {
			return nil, &stacktheory.ValidationError{Field: "target", Message: fmt.Sprintf("%s is not a distribution", val.Node)}
		}
		target = awsroute53.RecordTarget_FromAlias(awsroute53targets.NewCloudFrontTarget(dist))
	case string:
		target = awsroute53.RecordTarget_FromIpAddresses(jsii.String(val))
	default:
		return nil, &stacktheory.ValidationError{Field: "target", Message: "must be a distribution reference or an address"}
	}

	rp := &awsroute53.ARecordProps{
		Zone:       zone,
		RecordName: jsii.String(recordName),
		Target:     target,
	}
	if ttl, ok := numberProp(props, "ttl"); ok {
		rp.Ttl = awscdk.Duration_Seconds(jsii.Number(ttl))
	}
	return awsroute53.NewARecord(r.stack, id, rp), nil
}

func (r *renderer) table(id *string, props stacktheory.Properties) awsdynamodb.Table {
	tp := &awsdynamodb.TableProps{
		TableName:     r.str(props["tableName"]),
		PartitionKey:  &awsdynamodb.Attribute{Name: r.str(props["partitionKey"]), Type: awsdynamodb.AttributeType_STRING},
		BillingMode:   awsdynamodb.BillingMode_PAY_PER_REQUEST,
		RemovalPolicy: awscdk.RemovalPolicy_RETAIN,
	}
	if sk := stringProp(props, "sortKey"); sk != "" {
		tp.SortKey = &awsdynamodb.Attribute{Name: jsii.String(sk), Type: awsdynamodb.AttributeType_STRING}
	}
	if strings.EqualFold(stringProp(props, "billingMode"), "PROVISIONED") {
		tp.BillingMode = awsdynamodb.BillingMode_PROVISIONED
	}
	switch strings.ToUpper(stringProp(props, "stream")) {
	case "NEW_AND_OLD_IMAGES":
		tp.Stream = awsdynamodb.StreamViewType_NEW_AND_OLD_IMAGES
	case "NEW_IMAGE":
		tp.Stream = awsdynamodb.StreamViewType_NEW_IMAGE
	case "OLD_IMAGE":
		tp.Stream = awsdynamodb.StreamViewType_OLD_IMAGE
	case "KEYS_ONLY":
		tp.Stream = awsdynamodb.StreamViewType_KEYS_ONLY
	}
	return awsdynamodb.NewTable(r.stack, id, tp)
}

func (r *renderer) secret(id *string, props stacktheory.Properties) awssecretsmanager.Secret {
	sp := &awssecretsmanager.SecretProps{SecretName: r.str(props["name"])}
	if desc := stringProp(props, "description"); desc != "" {
		sp.Description = jsii.String(desc)
	}
	return awssecretsmanager.NewSecret(r.stack, id, sp)
}

func (r *renderer) function(id *string, props stacktheory.Properties) awslambda.Function {
	fp := &awslambda.FunctionProps{
		Handler: r.str(props["handler"]),
		Runtime: runtimeFor(stringProp(props, "runtime")),
		Code:    awslambda.Code_FromAsset(jsii.String(r.opts.AssetPath), nil),
	}
	if name := stringProp(props, "functionName"); name != "" {
		fp.FunctionName = jsii.String(name)
	}
	if mem, ok := numberProp(props, "memorySize"); ok {
		fp.MemorySize = jsii.Number(mem)
	}
	if timeout, ok := numberProp(props, "timeout"); ok {
		fp.Timeout = awscdk.Duration_Seconds(jsii.Number(timeout))
	}
	if env, ok := props["environment"].(map[string]any); ok && len(env) > 0 {
		vars := make(map[string]*string, len(env))
		for k, v := range env {
			vars[k] = r.str(v)
		}
		fp.Environment = &vars
	}
	fn := awslambda.NewFunction(r.stack, id, fp)

	r.grantReferences(fn, props)
	if u, ok := props["eventSource"].(stacktheory.Unknown); ok {
		if table, ok := r.tables[u.Node]; ok {
			fn.AddEventSource(awslambdaeventsources.NewDynamoEventSource(table, &awslambdaeventsources.DynamoEventSourceProps{
				StartingPosition: awslambda.StartingPosition_LATEST,
				BatchSize:        jsii.Number(100),
			}))
		}
	}
	return fn
}

// grantReferences gives a function access to the tables and secrets its
// environment points at.
func (r *renderer) grantReferences(fn awslambda.Function, props stacktheory.Properties) {
	env, _ := props["environment"].(map[string]any)
	for _, v := range env {
		u, ok := v.(stacktheory.Unknown)
		if !ok {
			continue
		}
		if table, ok := r.tables[u.Node]; ok {
			table.GrantReadWriteData(fn)
		}
		if secret, ok := r.secrets[u.Node]; ok {
			secret.GrantRead(fn, nil)
		}
	}
}

func (r *renderer) restAPI(id *string, props stacktheory.Properties) (awsapigateway.LambdaRestApi, error) {
	var handler awslambda.Function
	for _, key := range []string{"handlerArn", "integration"} {
		if u, ok := props[key].(stacktheory.Unknown); ok {
			if fn, ok := r.functions[u.Node]; ok {
				handler = fn
				break
			}
		}
	}
	if handler == nil {
		return nil, &stacktheory.ValidationError{Field: "integration", Message: "must reference a function in the same stack"}
	}

	ap := &awsapigateway.LambdaRestApiProps{
		Handler:     handler,
		RestApiName: r.str(props["name"]),
	}
	if stage := stringProp(props, "stageName"); stage != "" {
		ap.DeployOptions = &awsapigateway.StageOptions{StageName: jsii.String(stage)}
	}
	return awsapigateway.NewLambdaRestApi(r.stack, id, ap), nil
}

func runtimeFor(name string) awslambda.Runtime {
	switch strings.ToLower(name) {
	case "provided.al2":
		return awslambda.Runtime_PROVIDED_AL2()
	case "nodejs20.x":
		return awslambda.Runtime_NODEJS_20_X()
	case "python3.12":
		return awslambda.Runtime_PYTHON_3_12()
	default:
		return awslambda.Runtime_PROVIDED_AL2023()
	}
}
