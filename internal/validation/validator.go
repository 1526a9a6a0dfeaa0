package validation

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Methods accepted by Method.
var allowedMethods = []string{"GET", "POST", "PUT", "DELETE"}

// LoginRequest is the body of the local login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Password string `json:"password" validate:"required,min=8"`
}

// RegisterRequest is the body of the local registration endpoint.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Validator applies the field and target tables. It is safe for
// concurrent use once built.
type Validator struct {
	validate *validator.Validate
	fields   map[string]FieldRule
	targets  map[string]TargetRule
}

// Option configures a Validator.
type Option func(*Validator)

// WithFieldRules adds rules to the field table, replacing existing rules
// for the same field names.
func WithFieldRules(rules ...FieldRule) Option {
	return func(v *Validator) {
		for _, r := range rules {
			for _, f := range r.Fields {
				v.fields[f] = r
			}
		}
	}
}

// WithTargetRule sets the target rule for endpoint.
func WithTargetRule(endpoint string, rule TargetRule) Option {
	return func(v *Validator) {
		v.targets[endpoint] = rule
	}
}

// New returns a Validator with the default tables.
func New(opts ...Option) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonName)
	// Registration only fails for an empty tag or nil func.
	_ = validate.RegisterValidation(tagUsername, matches(usernamePattern))
	_ = validate.RegisterValidation(tagResourceName, matches(resourceNamePattern))

	v := &Validator{
		validate: validate,
		fields:   make(map[string]FieldRule),
		targets:  DefaultTargetRules(),
	}
	WithFieldRules(DefaultFieldRules()...)(v)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// Request runs every check in order and returns the first failure.
func (v *Validator) Request(method, endpoint string, data any) error {
	if err := v.Method(method); err != nil {
		return err
	}
	if err := v.Endpoint(endpoint); err != nil {
		return err
	}
	if err := v.Fields(data); err != nil {
		return err
	}
	return v.Target(endpoint, data)
}

// Method rejects anything but GET, POST, PUT and DELETE.
func (v *Validator) Method(method string) error {
	if !slices.Contains(allowedMethods, method) {
		return fieldError("method", "method", "oneof", fmt.Sprintf("Unsupported method '%s'", method))
	}
	return nil
}

// Endpoint rejects endpoints that are not absolute paths.
func (v *Validator) Endpoint(endpoint string) error {
	if !strings.HasPrefix(endpoint, "/") {
		return fieldError("endpoint", "endpoint", "startswith", "Endpoint must start with '/'")
	}
	return nil
}

// Fields checks well-known fields anywhere in data. Null data is
// accepted; any other non-object is rejected.
func (v *Validator) Fields(data any) error {
	switch d := data.(type) {
	case nil:
		return nil
	case map[string]any:
		return v.walk("data", d)
	default:
		return fieldError("data", "data", "object", "Input must be a JSON object")
	}
}

func (v *Validator) walk(path string, obj map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(obj)) {
		value := obj[key]
		fieldPath := path + "." + key

		if rule, ok := v.fields[key]; ok {
			if s, isString := value.(string); isString {
				if err := v.check(rule, key, fieldPath, s); err != nil {
					return err
				}
			}
			continue
		}

		switch nested := value.(type) {
		case map[string]any:
			if err := v.walk(fieldPath, nested); err != nil {
				return err
			}
		case []any:
			for i, item := range nested {
				if obj, ok := item.(map[string]any); ok {
					if err := v.walk(fieldPath+"["+strconv.Itoa(i)+"]", obj); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (v *Validator) check(rule FieldRule, field, path, value string) error {
	err := v.validate.Var(value, rule.Tag)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate %s: %w", field, err)
	}
	tag := verrs[0].Tag()
	msg, ok := rule.Messages[tag]
	if !ok {
		msg = fmt.Sprintf("Invalid value for %s", field)
	}
	return fieldError(field, path, tag, msg)
}

// Target checks the required and enumerated fields of the target served
// at endpoint. Endpoints without a target rule pass.
func (v *Validator) Target(endpoint string, data any) error {
	rule, ok := v.targets[endpoint]
	if !ok {
		return nil
	}

	obj, _ := data.(map[string]any)
	for _, field := range rule.Required {
		if _, present := obj[field]; !present {
			return fieldError(field, "data."+field, "required", "Missing required field: "+field)
		}
	}

	for _, field := range slices.Sorted(maps.Keys(rule.OneOf)) {
		s, isString := obj[field].(string)
		if !isString {
			continue
		}
		if !slices.Contains(rule.OneOf[field], s) {
			msg, ok := rule.Messages[field]
			if !ok {
				msg = fmt.Sprintf("Invalid %s setting", field)
			}
			return fieldError(field, "data."+field, "oneof", msg)
		}
	}
	return nil
}

// TargetFor returns the target rule registered for endpoint.
func (v *Validator) TargetFor(endpoint string) (TargetRule, bool) {
	rule, ok := v.targets[endpoint]
	return rule, ok
}

// Struct validates a tagged request struct. Every failing field is
// reported, joined with errors.Join.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	return fromValidator(err, v.structMessage)
}

func (v *Validator) structMessage(field, tag string) string {
	if tag == "required" {
		return field + " is required"
	}
	if rule, ok := v.fields[field]; ok {
		if msg, ok := rule.Messages[tag]; ok {
			return msg
		}
	}
	return fmt.Sprintf("Invalid value for %s", field)
}
