package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vampirenirmal/storyloom/internal/story"
)

// Genres offered when none are configured.
var DefaultGenres = []string{"General Fiction", "Science Fiction", "Fantasy", "Mystery", "Romance"}

const (
	MinChapters     = 1
	MaxChapters     = 10
	DefaultChapters = 3
)

// RunRequest is what a user asks for.
type RunRequest struct {
	Premise   string `json:"premise" validate:"required"`
	Genre     string `json:"genre" validate:"required,genre"`
	Chapters  int    `json:"chapters" validate:"min=1,max=10"`
	Coherence bool   `json:"coherence,omitempty"`
}

// Normalized returns the request with trimmed text and a lower-case genre.
func (r RunRequest) Normalized() RunRequest {
	r.Premise = strings.TrimSpace(r.Premise)
	r.Genre = story.NormalizeGenre(r.Genre)
	return r
}

// RequestValidator checks run requests against the configured genres.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator accepts the given genres, compared case-insensitively.
// An empty list means DefaultGenres.
func NewRequestValidator(genres []string) *RequestValidator {
	if len(genres) == 0 {
		genres = DefaultGenres
	}
	allowed := make(map[string]bool, len(genres))
	for _, g := range genres {
		allowed[story.NormalizeGenre(g)] = true
	}

	v := validator.New()
	_ = v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
		return allowed[story.NormalizeGenre(fl.Field().String())]
	})
	return &RequestValidator{validate: v}
}

// Validate returns a *ValidationError for the first rejected field.
func (rv *RequestValidator) Validate(req RunRequest) error {
	err := rv.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	fe := fieldErrs[0]
	return NewValidationError(fe.Field(), fe.Tag(), ruleMessage(fe), fe.Value())
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "genre":
		return "is not a supported genre"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "failed " + fe.Tag()
}
