package content

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

func getValidator() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// report json names so messages line up with the wire format
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterTranslation("notblank", trans,
			func(t ut.Translator) error {
				return t.Add("notblank", "{0} is required", true)
			},
			func(t ut.Translator, fe validator.FieldError) string {
				msg, _ := t.T("notblank", fe.Field())
				return msg
			},
		)

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

// Validate checks an aggregate against its publish-time rules and returns a
// *ValidationError listing every problem.
func Validate(a Aggregate) error {
	verr := &ValidationError{}
	getValidator().collect(a, verr)

	a.Hook.Medium.check("hook", verr)
	a.Main.Medium.check("main", verr)
	a.Full.Primary.check("full.primaryContent", verr)
	if a.Hook.Medium.IsEmpty() {
		verr.add("hook", "hook needs text or a resolved video")
	}
	if len(a.Full.Sections) == 0 {
		verr.add("full.sections", "full needs at least one section")
	}
	return verr.orNil()
}

// ValidateResponse checks that a response carries exactly the medium its
// kind declares.
func ValidateResponse(r Response) error {
	verr := &ValidationError{}
	getValidator().collect(r, verr)

	r.Medium.check("medium", verr)
	if r.Medium.IsEmpty() {
		if r.Medium.Kind == KindVideo {
			verr.add("medium", "video response needs an uploaded video")
		} else {
			verr.add("medium", "text response needs text")
		}
	}
	return verr.orNil()
}

func (s *validatorSvc) collect(v any, verr *ValidationError) {
	err := s.validate.Struct(v)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.add(fieldPath(fe.Namespace()), fe.Translate(s.translator))
	}
}

// fieldPath strips the root type name from a validator namespace.
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}
