package board

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the type of a placed object
type Kind string

const (
	Stickman Kind = "stickman"
	SmallCar Kind = "small_car"
	LongCar  Kind = "long_car"
	Obstacle Kind = "obstacle"
)

// Kinds lists every placeable kind
var Kinds = []Kind{Stickman, SmallCar, LongCar, Obstacle}

// ParseKind accepts a kind name in any case
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidObject, s)
	}
	return k, nil
}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case Stickman, SmallCar, LongCar, Obstacle:
		return true
	}
	return false
}

// DefaultSpan is the number of cells an object of this kind covers when a
// level does not say otherwise
func (k Kind) DefaultSpan() int {
	switch k {
	case SmallCar:
		return 2
	case LongCar:
		return 3
	}
	return 1
}

// IsCar reports whether objects of this kind can be boarded and leave the lot
func (k Kind) IsCar() bool {
	return k == SmallCar || k == LongCar
}

// Color pairs stickmen with the cars they may board
type Color string

const (
	Red    Color = "red"
	Green  Color = "green"
	Yellow Color = "yellow"
	Blue   Color = "blue"
	Purple Color = "purple"
	Orange Color = "orange"
)

// Colors lists every known color
var Colors = []Color{Red, Green, Yellow, Blue, Purple, Orange}

// ParseColor accepts a color name in any case. Obstacles may leave it empty
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown color %q", ErrInvalidObject, s)
	}
	return c, nil
}

// Valid reports whether c is a known color
func (c Color) Valid() bool {
	for _, known := range Colors {
		if c == known {
			return true
		}
	}
	return false
}

// Object is one thing placed on the board. It never changes after creation;
// moving an object clears its cells and places it again
type Object struct {
	ID    uuid.UUID `json:"id"`
	Kind  Kind      `json:"kind"`
	Color Color     `json:"color,omitempty"`
	Span  int       `json:"span"`
}

// NewObject creates an object with a fresh ID. A span of zero or less takes
// the kind's default
func NewObject(kind Kind, color Color, span int) *Object {
	if span <= 0 {
		span = kind.DefaultSpan()
	}
	return &Object{
		ID:    uuid.New(),
		Kind:  kind,
		Color: color,
		Span:  span,
	}
}

func (o *Object) String() string {
	if o.Color == "" {
		return fmt.Sprintf("%s[%s]", o.Kind, o.ID.String()[:8])
	}
	return fmt.Sprintf("%s %s[%s]", o.Color, o.Kind, o.ID.String()[:8])
}
