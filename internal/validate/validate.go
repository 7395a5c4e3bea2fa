// Package validate checks inbound request bodies against struct tags and
// reports field-level problems as "path: message" strings.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maruonline/leadgen/internal/model"
)

// FieldError is one field-level validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Errors is a list of field problems. It implements error so it can travel
// through ordinary error returns.
type Errors []FieldError

func (e Errors) Error() string {
	return "validation failed: " + strings.Join(e.Strings(), "; ")
}

// Strings renders each problem as "path: message".
func (e Errors) Strings() []string {
	out := make([]string, len(e))
	for i, fe := range e {
		out[i] = fe.String()
	}
	return out
}

// AsErrors extracts validation errors from err.
func AsErrors(err error) (Errors, bool) {
	var errs Errors
	if errors.As(err, &errs) {
		return errs, true
	}
	return nil, false
}

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// Struct validates s against its validate tags.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Errors{{Field: "body", Message: err.Error()}}
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fieldPath(fe.Namespace()), Message: message(fe)})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	kind := fe.Kind()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "http_url", "url":
		return "must be a valid http(s) URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		case reflect.Slice, reflect.Map:
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "min":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		case reflect.Slice, reflect.Map:
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	}
	return "is invalid"
}

// DecodeJSON unmarshals body into dst and validates it. Unknown fields are
// accepted.
func DecodeJSON(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return Errors{{Field: "body", Message: "is required"}}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return Errors{{Field: "body", Message: decodeMessage(err)}}
	}
	return Struct(dst)
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("field %s must be %s", typeErr.Field, typeErr.Type.String())
	}
	return "must be valid JSON"
}

// SubmissionRequest is the envelope of POST /api/assessments.
type SubmissionRequest struct {
	Email     string          `json:"email" validate:"required,max=255,email"`
	AppType   model.AppType   `json:"app_type" validate:"required,oneof=lead_score pipeline_leak proposal tech_audit"`
	InputData json.RawMessage `json:"input_data" validate:"required"`
}

// Submission is a validated assessment submission.
type Submission struct {
	Email     string
	AppType   model.AppType
	InputData json.RawMessage
	Payload   model.Payload
}

// ParseSubmission validates an assessment submission body and decodes its
// input_data into the payload for its app_type. Field problems come back as
// Errors; the raw input_data is kept byte for byte.
func ParseSubmission(body []byte) (*Submission, error) {
	var req SubmissionRequest
	if err := DecodeJSON(body, &req); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(req.InputData)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, Errors{{Field: "input_data", Message: "must be an object"}}
	}

	p, err := model.DecodePayload(req.AppType, req.InputData)
	if err != nil {
		return nil, Errors{{Field: "input_data", Message: decodeMessage(err)}}
	}
	if err := Struct(p); err != nil {
		errs, _ := AsErrors(err)
		for i := range errs {
			errs[i].Field = "input_data." + errs[i].Field
		}
		return nil, errs
	}
	if pp, ok := p.(*model.ProposalPayload); ok && pp.Company() == "" {
		return nil, Errors{{Field: "input_data.company_info.name", Message: "is required"}}
	}

	return &Submission{
		Email:     req.Email,
		AppType:   req.AppType,
		InputData: req.InputData,
		Payload:   p,
	}, nil
}
