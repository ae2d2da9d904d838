package middleware

import (
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

var gatewayHeaders = []string{
	HeaderGatewayAuthorized,
	HeaderUserID,
	HeaderUserEmail,
	HeaderUserRoles,
}

// ApplyAuthorizerClaims drops caller-supplied gateway headers, then copies the claims of
// API Gateway's JWT authorizer into them. Requests without authorizer claims fall through
// to bearer token validation.
func ApplyAuthorizerClaims(req *events.APIGatewayV2HTTPRequest) {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	for key := range req.Headers {
		for _, h := range gatewayHeaders {
			if strings.EqualFold(key, h) {
				delete(req.Headers, key)
			}
		}
	}

	authorizer := req.RequestContext.Authorizer
	if authorizer == nil || authorizer.JWT == nil {
		return
	}
	sub := authorizer.JWT.Claims["sub"]
	if sub == "" {
		return
	}

	req.Headers[HeaderGatewayAuthorized] = "true"
	req.Headers[HeaderUserID] = sub
	if email := authorizer.JWT.Claims["email"]; email != "" {
		req.Headers[HeaderUserEmail] = email
	}
}
