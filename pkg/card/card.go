// Package card defines the immutable descriptor rendered for every contextual card.
package card

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is the stable numeric identifier of a card and of the controller that owns it
type ID int64

// String returns the decimal form of the id
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a decimal card id
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid card id %q: %w", s, err)
	}
	return ID(n), nil
}

// Kind is the closed set of card variants a renderer has to handle
type Kind int

const (
	KindCondition  Kind = iota // Status of a host condition that currently holds
	KindSuggestion             // Something the user may want to act on
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindCondition:
		return "condition"
	case KindSuggestion:
		return "suggestion"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a wire name back into a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "condition":
		return KindCondition, nil
	case "suggestion":
		return KindSuggestion, nil
	default:
		return 0, fmt.Errorf("unknown card kind %q", s)
	}
}

// Card is an immutable display descriptor. Use Builder to create one.
type Card struct {
	id          ID
	kind        Kind
	title       string
	summary     string
	icon        string
	actionLabel string
	metricsTag  string
}

func (c Card) ID() ID              { return c.id }
func (c Card) Kind() Kind          { return c.kind }
func (c Card) Title() string       { return c.title }
func (c Card) Summary() string     { return c.summary }
func (c Card) Icon() string        { return c.icon }
func (c Card) ActionLabel() string { return c.actionLabel }
func (c Card) MetricsTag() string  { return c.metricsTag }

// HasAction reports whether the card carries an action label
func (c Card) HasAction() bool {
	return c.actionLabel != ""
}

// IsZero reports whether c was never built
func (c Card) IsZero() bool {
	return c.id == 0 && c.title == ""
}

// wireCard is the JSON shape of a Card
type wireCard struct {
	ID          ID     `json:"id"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Summary     string `json:"summary,omitempty"`
	Icon        string `json:"icon,omitempty"`
	ActionLabel string `json:"action_label,omitempty"`
	MetricsTag  string `json:"metrics_tag,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCard{
		ID:          c.id,
		Kind:        c.kind.String(),
		Title:       c.title,
		Summary:     c.summary,
		Icon:        c.icon,
		ActionLabel: c.actionLabel,
		MetricsTag:  c.metricsTag,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Card) UnmarshalJSON(data []byte) error {
	var w wireCard
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := ParseKind(w.Kind)
	if err != nil {
		return err
	}
	*c = Card{
		id:          w.ID,
		kind:        kind,
		title:       w.Title,
		summary:     w.Summary,
		icon:        w.Icon,
		actionLabel: w.ActionLabel,
		metricsTag:  w.MetricsTag,
	}
	return nil
}
