package multihistory

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dshills/rewind/internal/notify"
)

// DefaultKey is the single key configured by DefaultOptions.
const DefaultKey = "default"

// DefaultCapacity is the number of snapshots each ledger keeps by default.
const DefaultCapacity = 50

// Mutation is a committed change reported by the host store.
type Mutation struct {
	// Type names the mutation; it becomes the snapshot label.
	Type string

	// Payload is the argument the mutation was committed with.
	Payload any
}

// FilterFunc decides whether a mutation is recorded at all.
type FilterFunc func(m Mutation) (bool, error)

// ResolveFunc maps a mutation to the history keys that record it.
type ResolveFunc func(m Mutation) ([]string, error)

// SerializeFunc turns the state into the payload stored for key.
type SerializeFunc[S any] func(key string, state S) (any, error)

// DeserializeFunc turns a stored payload for key back into a full state.
// current is the live state at the time of the restore.
type DeserializeFunc[S any] func(key string, payload any, current S) (S, error)

// Options configures a Registry. Start from DefaultOptions; zero values
// are reported as violations, never replaced.
type Options[S any] struct {
	Capacity int      `validate:"gt=0"`
	Keys     []string `validate:"min=1,unique,dive,historykey"`

	Filter      FilterFunc         `validate:"required"`
	Resolve     ResolveFunc        `validate:"required"`
	Serialize   SerializeFunc[S]   `validate:"required"`
	Deserialize DeserializeFunc[S] `validate:"required"`

	// Debug logs rejected snapshot selectors.
	Debug bool

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger `validate:"-"`

	// Notifier receives ledger and registry changes. Optional.
	Notifier *notify.Notifier `validate:"-"`
}

// DefaultOptions returns options with capacity 50, the single key
// "default", a filter that accepts everything, a resolver that routes
// every mutation to "default" and identity transforms.
func DefaultOptions[S any]() Options[S] {
	return Options[S]{
		Capacity:    DefaultCapacity,
		Keys:        []string{DefaultKey},
		Filter:      AcceptAll,
		Resolve:     ResolveTo(DefaultKey),
		Serialize:   IdentitySerialize[S],
		Deserialize: IdentityDeserialize[S],
	}
}

// AcceptAll is a FilterFunc that records every mutation.
func AcceptAll(Mutation) (bool, error) {
	return true, nil
}

// ResolveTo returns a ResolveFunc that routes every mutation to keys.
func ResolveTo(keys ...string) ResolveFunc {
	fixed := append([]string(nil), keys...)
	return func(Mutation) ([]string, error) {
		return append([]string(nil), fixed...), nil
	}
}

// IdentitySerialize stores the state as is.
func IdentitySerialize[S any](_ string, state S) (any, error) {
	return state, nil
}

// IdentityDeserialize restores a payload produced by IdentitySerialize.
func IdentityDeserialize[S any](key string, payload any, _ S) (S, error) {
	state, ok := payload.(S)
	if !ok {
		var zero S
		return zero, fmt.Errorf("history %q: payload is %T, want %T", key, payload, zero)
	}
	return state, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("historykey", validateHistoryKey)
	return v
}

// validateHistoryKey rejects empty and whitespace-only keys.
func validateHistoryKey(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validate checks every option and returns a *ConfigError listing all
// violations, or nil.
func (o Options[S]) Validate() error {
	cerr := &ConfigError{}

	if err := validate.Struct(o); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			cerr.add("options", err.Error())
			return cerr
		}
		for _, fe := range fieldErrs {
			cerr.add(fieldName(fe), describe(fe))
		}
	}

	return cerr.asError()
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.StructField()
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("has to be greater than %s", fe.Param())
	case "min":
		return "cannot be empty"
	case "unique":
		return "cannot contain duplicates"
	case "historykey":
		return "cannot be blank"
	case "required":
		return "has to be a function"
	default:
		return fmt.Sprintf("failed the %q check", fe.Tag())
	}
}
