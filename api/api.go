// Package api holds the HTTP contract of the DocVault API.
package api

import _ "embed"

// OpenAPI is the OpenAPI 3 document describing every /v1 route.
//
//go:embed openapi.yaml
var OpenAPI []byte
