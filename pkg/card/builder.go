package card

import "fmt"

// Builder assembles a Card. Each Build call returns an independent value.
type Builder struct {
	c Card
}

// NewBuilder starts a condition card with the given id
func NewBuilder(id ID) *Builder {
	return &Builder{c: Card{id: id, kind: KindCondition}}
}

// Kind sets the card variant
func (b *Builder) Kind(k Kind) *Builder {
	b.c.kind = k
	return b
}

// Title sets the card title
func (b *Builder) Title(title string) *Builder {
	b.c.title = title
	return b
}

// Summary sets the secondary text
func (b *Builder) Summary(summary string) *Builder {
	b.c.summary = summary
	return b
}

// Icon sets the icon reference
func (b *Builder) Icon(icon string) *Builder {
	b.c.icon = icon
	return b
}

// ActionLabel sets the optional action label
func (b *Builder) ActionLabel(label string) *Builder {
	b.c.actionLabel = label
	return b
}

// MetricsTag sets the tag reported with card impressions
func (b *Builder) MetricsTag(tag string) *Builder {
	b.c.metricsTag = tag
	return b
}

// Build returns the finished card. A card without a title is a wiring bug.
func (b *Builder) Build() Card {
	if b.c.title == "" {
		panic(fmt.Sprintf("card %d built without a title", b.c.id))
	}
	return b.c
}
