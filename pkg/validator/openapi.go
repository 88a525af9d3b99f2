package validator

import (
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"

	apperrors "storygen/backend/pkg/errors"
)

// OpenAPIValidator checks incoming requests against an OpenAPI 3 document.
// Requests for paths the document does not describe pass through.
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewOpenAPIValidator loads and validates the document at schemaPath.
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", schemaPath, err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{doc: doc, router: router}, nil
}

// Operations counts the operations the document declares.
func (v *OpenAPIValidator) Operations() int {
	n := 0
	for _, item := range v.doc.Paths.Map() {
		n += len(item.Operations())
	}
	return n
}

// Middleware rejects requests that break the document with 400
// INVALID_REQUEST. Every violation is listed in the error details.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         true,
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.Error(apperrors.BadRequestWithDetails("INVALID_REQUEST", "Request does not match the API schema",
				violations(err)).WithCause(err))
			c.Abort()
			return
		}

		c.Next()
	}
}

// violations flattens a (multi) validation error into readable lines.
func violations(err error) []string {
	var multi openapi3.MultiError
	if !errors.As(err, &multi) {
		return []string{describe(err)}
	}
	out := make([]string, 0, len(multi))
	for _, e := range multi {
		out = append(out, describe(e))
	}
	return out
}

func describe(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("parameter %q: %s", reqErr.Parameter.Name, reqErr.Error())
		}
		if reqErr.RequestBody != nil {
			return "request body: " + reqErr.Error()
		}
	}
	return err.Error()
}
