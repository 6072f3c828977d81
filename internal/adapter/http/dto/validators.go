package dto

import (
	"net/url"
	"reflect"
	"strings"

	"payment-node/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_url", validateSafeURL)
	}
}

// validateSafeURL accepts only http/https URLs.
func validateSafeURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // optional field; use "required" tag to enforce presence
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// ParseEventKinds converts the wire representation of a kind filter into
// domain kinds, rejecting unknown names.
func ParseEventKinds(names []string) ([]domain.EventKind, error) {
	if len(names) == 0 {
		return nil, nil
	}
	kinds := make([]domain.EventKind, 0, len(names))
	for _, n := range names {
		k := domain.EventKind(strings.TrimSpace(n))
		if !k.Valid() {
			return nil, &UnknownKindError{Name: n}
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// UnknownKindError reports a kind name outside the known event kinds.
type UnknownKindError struct {
	Name string
}

func (e *UnknownKindError) Error() string {
	return "unknown event kind: " + e.Name
}

// SanitizeStruct trims whitespace on every exported string field (including
// *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(strings.TrimSpace(elem.String()))
			}
		}
	}
}
