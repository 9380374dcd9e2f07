package httpadapter

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

const maxRequestBodyBytes = 1 << 20

//go:embed openapi.yaml
var openAPISpec []byte

// bodyValidator checks JSON request bodies against the component schemas of
// the embedded OpenAPI document.
type bodyValidator struct {
	schemas openapi3.Schemas
}

func newBodyValidator() (*bodyValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return &bodyValidator{schemas: doc.Components.Schemas}, nil
}

func (v *bodyValidator) validate(schemaName string, body []byte) error {
	ref, ok := v.schemas[schemaName]
	if !ok || ref.Value == nil {
		return fmt.Errorf("unknown schema %q", schemaName)
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode body", errors.New("invalid json"))
	}
	if err := ref.Value.VisitJSON(value); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate body", schemaErrorDetail(err))
	}
	return nil
}

func schemaErrorDetail(err error) error {
	var schemaErr *openapi3.SchemaError
	if !errors.As(err, &schemaErr) {
		return err
	}
	pointer := strings.Join(schemaErr.JSONPointer(), "/")
	if pointer == "" {
		return errors.New(schemaErr.Reason)
	}
	return fmt.Errorf("/%s: %s", pointer, schemaErr.Reason)
}

// validateBody reads the request body, validates it and hands an identical
// body to next.
func (rt *Router) validateBody(schemaName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
			if err != nil {
				rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read body", err))
				return
			}
			if err := rt.validator.validate(schemaName, body); err != nil {
				rt.writeError(w, r, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
