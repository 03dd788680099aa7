package api

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// ServeAPIGatewayProxy adapts an API Gateway REST proxy event.
func (s *Server) ServeAPIGatewayProxy(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	req, err := requestFromAPIGatewayProxy(event)
	if err != nil {
		return proxyResponse(errorResponse(400, codeBadRequest, "invalid request body", event.RequestContext.RequestID, nil))
	}
	if req.Headers["x-request-id"] == nil && event.RequestContext.RequestID != "" {
		req.Headers["x-request-id"] = []string{event.RequestContext.RequestID}
	}
	return proxyResponse(s.Serve(ctx, req))
}

func requestFromAPIGatewayProxy(event events.APIGatewayProxyRequest) (Request, error) {
	path := event.Path
	if path == "" {
		path = event.RequestContext.Path
	}
	method := event.HTTPMethod
	if method == "" {
		method = event.RequestContext.HTTPMethod
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return Request{}, err
		}
		body = decoded
	}

	return Request{
		Method:  method,
		Path:    path,
		Query:   multiValues(event.QueryStringParameters, event.MultiValueQueryStringParameters, false),
		Headers: multiValues(event.Headers, event.MultiValueHeaders, true),
		Body:    body,
	}, nil
}

func multiValues(single map[string]string, multi map[string][]string, lower bool) map[string][]string {
	out := map[string][]string{}
	key := func(k string) string {
		if lower {
			return strings.ToLower(strings.TrimSpace(k))
		}
		return k
	}
	for k, v := range multi {
		out[key(k)] = append(out[key(k)], v...)
	}
	for k, v := range single {
		if _, ok := out[key(k)]; !ok {
			out[key(k)] = []string{v}
		}
	}
	return out
}

func proxyResponse(resp Response) events.APIGatewayProxyResponse {
	out := events.APIGatewayProxyResponse{
		StatusCode:        resp.Status,
		Headers:           map[string]string{},
		MultiValueHeaders: map[string][]string{},
		Body:              string(resp.Body),
	}
	for key, values := range resp.Headers {
		if len(values) == 0 {
			continue
		}
		out.Headers[key] = values[0]
		out.MultiValueHeaders[key] = append([]string(nil), values...)
	}
	return out
}
