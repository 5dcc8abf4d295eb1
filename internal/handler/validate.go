package handler

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/matthewbaird/propmaint/internal/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("level", func(fl validator.FieldLevel) bool {
		_, ok := types.ParseLevel(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		_, ok := types.ParseStatus(fl.Field().String())
		return ok
	})
	return v
}

// describe flattens validator errors into one message.
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "level":
			parts = append(parts, fmt.Sprintf("%s must be low, medium or high, got %q", fe.Field(), fe.Value()))
		case "status":
			parts = append(parts, fmt.Sprintf("%s %q is not a status", fe.Field(), fe.Value()))
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// bind decodes the JSON body into v and validates it, writing the error
// response itself when either step fails.
func bind(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	if err := decodeJSON(r, v, allowEmpty); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return false
	}
	return check(w, v)
}

func check(w http.ResponseWriter, v any) bool {
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", describe(err))
		return false
	}
	return true
}
