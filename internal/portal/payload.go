package portal

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"regportal.io/automation/internal/domain"
	apperrors "regportal.io/automation/internal/pkg/errors"
)

// LoginPayload carries no input; login only needs the resolved credential.
type LoginPayload struct{}

// DeclarationPayload is the input of submit-declaration.
type DeclarationPayload struct {
	Kind        string         `mapstructure:"kind" validate:"required"`
	Period      string         `mapstructure:"period" validate:"required,datetime=2006-01"`
	Attachments []string       `mapstructure:"attachments" validate:"dive,required"`
	Fields      map[string]any `mapstructure:"fields"`
}

// CustomsDeclarationPayload is the customs variant of submit-declaration.
type CustomsDeclarationPayload struct {
	Regime      string   `mapstructure:"regime" validate:"required,oneof=import export transit"`
	EORI        string   `mapstructure:"eori" validate:"required,alphanum,min=3,max=17"`
	GoodsCode   string   `mapstructure:"goodsCode" validate:"required,numeric,min=6,max=10"`
	Value       float64  `mapstructure:"value" validate:"gt=0"`
	Currency    string   `mapstructure:"currency" validate:"omitempty,iso4217"`
	Attachments []string `mapstructure:"attachments" validate:"dive,required"`
}

// StatusPayload is the input of check-status.
type StatusPayload struct {
	Reference string `mapstructure:"reference" validate:"required"`
}

// DownloadPayload is the input of download-documents.
type DownloadPayload struct {
	Reference string     `mapstructure:"reference" validate:"required"`
	Types     []string   `mapstructure:"types" validate:"dive,required"`
	Since     *time.Time `mapstructure:"since"`
}

// PlantRegistrationPayload is the input of Terna register-plant.
type PlantRegistrationPayload struct {
	PlantName    string  `mapstructure:"plantName" validate:"required"`
	Technology   string  `mapstructure:"technology" validate:"required,oneof=solar wind hydro storage thermal"`
	PowerKW      float64 `mapstructure:"powerKw" validate:"gt=0"`
	POD          string  `mapstructure:"pod" validate:"required,alphanum,len=14"`
	Municipality string  `mapstructure:"municipality" validate:"required"`
}

// ConnectionRequestPayload is the input of DSO submit-connection-request.
type ConnectionRequestPayload struct {
	POD              string  `mapstructure:"pod" validate:"omitempty,alphanum,len=14"`
	Kind             string  `mapstructure:"kind" validate:"required,oneof=new upgrade"`
	RequestedPowerKW float64 `mapstructure:"requestedPowerKw" validate:"gt=0"`
	Address          string  `mapstructure:"address" validate:"required"`
}

var sharedValidator = newValidator()

// newValidator reports fields by their payload key rather than the Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// decodePayload decodes the free-form payload into out and validates it.
// Unknown keys are rejected so typos surface at enqueue.
func decodePayload(payload domain.Payload, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("build payload decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(payload)); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidPayload, "payload does not match the action input", http.StatusBadRequest)
	}
	if err := sharedValidator.Struct(out); err != nil {
		return invalidPayload(err)
	}
	return nil
}

func invalidPayload(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(err, apperrors.CodeInvalidPayload, "payload validation failed", http.StatusBadRequest)
	}
	fields := make([]apperrors.FieldError, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperrors.FieldError{
			Field:   fe.Field(),
			Code:    strings.ToUpper(fe.Tag()),
			Message: fieldMessage(fe),
		})
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperrors.New(apperrors.CodeInvalidPayload, strings.Join(msgs, "; "), http.StatusBadRequest).WithFieldErrors(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "len":
		return fe.Field() + " must be exactly " + fe.Param() + " characters"
	case "datetime":
		return fe.Field() + " must match layout " + fe.Param()
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
