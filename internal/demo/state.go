package demo

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/rewind/internal/multihistory"
)

// Well-known history keys of the demo.
const (
	KeyCounter  = "counter"
	KeyEntities = "entities"
)

// Mutation types understood by the demo store.
const (
	MutAdd    = "add"
	MutSub    = "sub"
	MutText   = "text"
	MutEntity = "entity"
	MutRename = "rename"
)

// ErrEntityNotFound is returned when rename names no entity.
var ErrEntityNotFound = errors.New("entity not found")

// Entity is a uuid-identified value.
type Entity struct {
	ID    uuid.UUID `json:"id"`
	Value string    `json:"value"`
}

// State is the demo application state.
type State struct {
	Sum      int                 `json:"sum"`
	Texts    map[string][]string `json:"texts"`
	Entities []Entity            `json:"entities"`
}

// TextPayload sets the words of one locale.
type TextPayload struct {
	Locale string   `json:"locale"`
	Words  []string `json:"words"`
}

// InitialState returns an empty state.
func InitialState() State {
	return State{
		Texts:    map[string][]string{},
		Entities: []Entity{},
	}
}

// DefaultPath returns the JSON path a key records when none is configured:
// the sum for the counter, the entity list for entities, and the texts of
// the locale named by the key otherwise.
func DefaultPath(key string) string {
	switch key {
	case KeyCounter:
		return "sum"
	case KeyEntities:
		return "entities"
	default:
		return "texts." + escapePath(key)
	}
}

// escapePath escapes gjson path metacharacters in a single path component.
func escapePath(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Resolve routes counter mutations to the counter, texts to their locale
// and entity mutations to entities. Anything else goes to fallback.
func Resolve(fallback string) multihistory.ResolveFunc {
	return func(m multihistory.Mutation) ([]string, error) {
		switch m.Type {
		case MutAdd, MutSub:
			return []string{KeyCounter}, nil
		case MutText:
			p, ok := m.Payload.(TextPayload)
			if !ok {
				return nil, fmt.Errorf("text payload is %T", m.Payload)
			}
			return []string{p.Locale}, nil
		case MutEntity, MutRename:
			return []string{KeyEntities}, nil
		default:
			return []string{fallback}, nil
		}
	}
}

func addHandler(sign int) func(State, any) (State, error) {
	return func(s State, payload any) (State, error) {
		n, ok := payload.(int)
		if !ok {
			return s, fmt.Errorf("payload must be an int, got %T", payload)
		}
		s.Sum += sign * n
		return s, nil
	}
}

func textHandler(s State, payload any) (State, error) {
	p, ok := payload.(TextPayload)
	if !ok {
		return s, fmt.Errorf("payload must be a TextPayload, got %T", payload)
	}
	texts := maps.Clone(s.Texts)
	if texts == nil {
		texts = map[string][]string{}
	}
	texts[p.Locale] = slices.Clone(p.Words)
	s.Texts = texts
	return s, nil
}

func entityHandler(s State, payload any) (State, error) {
	e, ok := payload.(Entity)
	if !ok {
		return s, fmt.Errorf("payload must be an Entity, got %T", payload)
	}
	s.Entities = append(slices.Clone(s.Entities), e)
	return s, nil
}

func renameHandler(s State, payload any) (State, error) {
	e, ok := payload.(Entity)
	if !ok {
		return s, fmt.Errorf("payload must be an Entity, got %T", payload)
	}
	i := slices.IndexFunc(s.Entities, func(x Entity) bool { return x.ID == e.ID })
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrEntityNotFound, e.ID)
	}
	s.Entities = slices.Clone(s.Entities)
	s.Entities[i].Value = e.Value
	return s, nil
}
