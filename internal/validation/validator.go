// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared by the configuration loader and the
// admin API. Field names in errors come from the json tag, then the koanf tag,
// so a bad config key is reported as "header_flush_every" rather than
// "HeaderFlushEvery".
//
// Custom tags:
//   - zip5:   empty, or 1 to 5 ASCII digits
//   - hexkey: exactly 12 hex characters (a 6-byte MIFARE sector key)
//
// Example usage:
//
//	type PurchaseRequest struct {
//	    Amount string `json:"amount" validate:"required"`
//	    Zip    string `json:"zip" validate:"omitempty,zip5"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    ...
//	}
package validation

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError represents a single field validation error.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the field name that failed validation.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter (e.g. "100" for "max=100").
func (e *ValidationError) Param() string { return e.param }

// Value returns the value that failed validation.
func (e *ValidationError) Value() interface{} { return e.value }

// Error returns a human-readable error message.
func (e *ValidationError) Error() string { return e.message }

// RequestValidationError is a collection of field validation errors.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field errors.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

// Error joins all field messages.
func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for i := range ve.errors {
		messages = append(messages, ve.errors[i].Error())
	}
	return strings.Join(messages, "; ")
}

// APIError is the admin API error body shape.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToAPIError converts validation errors to the admin API error format.
func (ve *RequestValidationError) ToAPIError() *APIError {
	if len(ve.errors) == 0 {
		return &APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	}

	if len(ve.errors) == 1 {
		err := ve.errors[0]
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: err.message,
			Details: map[string]interface{}{
				"field": err.field,
				"tag":   err.tag,
			},
		}
	}

	fields := make([]map[string]interface{}, len(ve.errors))
	for i, err := range ve.errors {
		fields[i] = map[string]interface{}{
			"field":   err.field,
			"tag":     err.tag,
			"message": err.message,
		}
	}
	return &APIError{
		Code:    "VALIDATION_ERROR",
		Message: ve.Error(),
		Details: map[string]interface{}{"fields": fields},
	}
}

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(tagName)
		// Registration only fails on an empty tag or nil func.
		_ = v.RegisterValidation("zip5", validateZip5)
		_ = v.RegisterValidation("hexkey", validateHexKey)
		validate = v
	})
	return validate
}

func tagName(f reflect.StructField) string {
	for _, key := range []string{"json", "koanf"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

func validateZip5(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	if len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validateHexKey(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 12 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ValidateStruct validates s with the shared validator.
// Returns nil on success.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fieldPath(fe),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// fieldPath drops the top-level struct name from the namespace,
// "Config.card.header_flush_every" becomes "card.header_flush_every".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

var errorMessageTemplates = map[string]string{
	"required":      "%s is required",
	"latitude":      "%s must be a valid latitude (-90 to 90)",
	"longitude":     "%s must be a valid longitude (-180 to 180)",
	"zip5":          "%s must be a ZIP code of at most 5 digits",
	"hexkey":        "%s must be 12 hex characters",
	"hostname_port": "%s must be host:port",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field := fieldPath(fe)
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
