package video

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Descriptor is the JSON payload describing one random video.
type Descriptor struct {
	VideoURL     string `json:"video_url" validate:"required"`
	Title        string `json:"title" validate:"required"`
	Photographer string `json:"photographer"`
	Duration     int    `json:"duration" validate:"gte=0"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// Source picks one random video.
type Source interface {
	Random(ctx context.Context) (Descriptor, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports the first field that makes d unusable for playback.
func (d Descriptor) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return fmt.Errorf("validate descriptor: %w", err)
	}
	first := validationErrors[0]
	switch first.Tag() {
	case "required":
		return fmt.Errorf("%s is required", first.Field())
	case "gte":
		return fmt.Errorf("%s must not be negative", first.Field())
	}
	return fmt.Errorf("%s is invalid", first.Field())
}
