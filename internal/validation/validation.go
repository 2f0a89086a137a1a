// Package validation wraps go-playground/validator with English error
// messages keyed by the yaml field names users actually write.
package validation

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

var (
	once  sync.Once
	valid *validator.Validate
	trans ut.Translator
)

func setup() {
	valid = validator.New(validator.WithRequiredStructEnabled())
	valid.RegisterTagNameFunc(fieldName)

	loc := en.New()
	trans, _ = ut.New(loc, loc).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(valid, trans); err != nil {
		panic("validation: register translations: " + err.Error())
	}
}

// fieldName reports the yaml (or json) key for a struct field so
// messages read "command is a required field".
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"yaml", "json"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// Error carries one translated message per failed field, in struct
// order.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Struct validates v against its `validate` tags. Failures come back as
// *Error; anything else (e.g. a non-struct argument) is returned as is.
func Struct(v any) error {
	once.Do(setup)

	err := valid.Struct(v)
	if err == nil {
		return nil
	}
	var vErr validator.ValidationErrors
	if !errors.As(err, &vErr) {
		return err
	}
	out := &Error{Messages: make([]string, 0, len(vErr))}
	for _, fe := range vErr {
		out.Messages = append(out.Messages, fe.Translate(trans))
	}
	return out
}

// Var validates a single value against tag, e.g. Var(u, "url").
func Var(v any, tag string) error {
	once.Do(setup)
	return valid.Var(v, tag)
}
