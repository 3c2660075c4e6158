package handler

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"handover/internal/http/middleware"
	"handover/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage flattens validator errors into "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, fe.Tag()))
	}
	sort.Strings(parts)
	return "invalid fields: " + strings.Join(parts, ", ")
}

// bind decodes the JSON body into dst and validates it. It writes the 400
// response itself and reports false when the request must stop.
func bind(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return false, writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err))
	}
	return true, nil
}

// actorOf returns the caller; a zero actor is rejected by the service layer.
func actorOf(c *fiber.Ctx) model.Actor {
	a, _ := middleware.ActorFromCtx(c)
	return a
}

type entityRefDTO struct {
	Kind string `json:"kind" validate:"required,max=64"`
	ID   string `json:"id" validate:"required,max=128"`
}

type sourceRefDTO struct {
	Kind     string `json:"kind" validate:"required,max=64"`
	ID       string `json:"id" validate:"required,max=128"`
	Relation string `json:"relation" validate:"omitempty,max=64"`
}

func toEntityRefs(in []entityRefDTO) []model.EntityRef {
	out := make([]model.EntityRef, 0, len(in))
	for _, r := range in {
		out = append(out, model.EntityRef{Kind: r.Kind, ID: r.ID})
	}
	return out
}

func toSourceRefs(in []sourceRefDTO) []model.SourceRef {
	out := make([]model.SourceRef, 0, len(in))
	for _, r := range in {
		out = append(out, model.SourceRef{Kind: r.Kind, ID: r.ID, Relation: r.Relation})
	}
	return out
}
