package httpserver

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

// ValidationError describes one rejected form field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// analyzeForm holds the non-file fields of an analyze request.
type analyzeForm struct {
	RequiredSkills string `form:"required_skills" validate:"required,max=2000"`
	RoleLevel      string `form:"role_level" validate:"required,max=100"`
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		vld.RegisterTagNameFunc(func(f reflect.StructField) string { return f.Tag.Get("form") })
	})
	return vld
}

// validateForm trims the fields and checks them, returning per-field errors.
func validateForm(f *analyzeForm) []ValidationError {
	f.RequiredSkills = strings.TrimSpace(f.RequiredSkills)
	f.RoleLevel = strings.TrimSpace(f.RoleLevel)
	err := getValidator().Struct(f)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []ValidationError{{Field: "form", Code: "INVALID", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    strings.ToUpper(fe.Tag()),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// validateAnalysisID rejects ids that cannot name a stored analysis.
func validateAnalysisID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidArgument)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: id must be a uuid", domain.ErrInvalidArgument)
	}
	return nil
}
