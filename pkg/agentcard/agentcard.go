// Package agentcard builds the A2A discovery document (C9): static
// metadata, declarative skill descriptors, and an optional agent-supplied
// override composed last.
package agentcard

// Visibility gates whether an agent card is surfaced to unauthenticated
// discovery requests, mirroring hector's public/internal/private
// visibility filtering on its /v1/agents discovery endpoint.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
	VisibilityPrivate  Visibility = "private"
)

// Provider describes who publishes the agent.
type Provider struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Interface is an additional transport the agent is reachable over.
type Interface struct {
	Transport string `json:"transport"`
	URL       string `json:"url"`
}

// Capabilities advertises what the agent supports.
type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// SecurityScheme describes one authentication mechanism the agent accepts.
type SecurityScheme struct {
	Type   string `json:"type"`
	Scheme string `json:"scheme,omitempty"`
	In     string `json:"in,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Skill is a declarative capability descriptor surfaced to callers
// deciding whether this agent can help with a task.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Card is the discovery document served at /v1/card.
type Card struct {
	Name                string           `json:"name"`
	Description         string           `json:"description,omitempty"`
	Version             string           `json:"version"`
	ProtocolVersion     string           `json:"protocolVersion"`
	URL                 string           `json:"url"`
	Provider            *Provider        `json:"provider,omitempty"`
	PreferredTransport  string           `json:"preferredTransport"`
	AdditionalInterfaces []Interface     `json:"additionalInterfaces,omitempty"`
	Capabilities        Capabilities     `json:"capabilities"`
	Skills              []Skill         `json:"skills,omitempty"`
	SecuritySchemes     []SecurityScheme `json:"securitySchemes,omitempty"`
	DefaultInputModes   []string         `json:"defaultInputModes,omitempty"`
	DefaultOutputModes  []string         `json:"defaultOutputModes,omitempty"`

	// Visibility is a supplement beyond the base A2A discovery shape: it
	// is not serialized onto the wire card; Visible consults it to decide
	// whether this card is shown to an unauthenticated caller.
	Visibility Visibility `json:"-"`
}

// Override lets the user-written agent replace fields on the card the
// Builder otherwise composes from static configuration. Only non-zero
// fields are applied.
type Override struct {
	Name        string
	Description string
	Skills      []Skill
}

// Builder composes a Card from static metadata plus an optional
// agent-supplied Override, applied last.
type Builder struct {
	base     Card
	override *Override
}

// NewBuilder seeds a Builder with the static portion of the card.
func NewBuilder(base Card) *Builder {
	return &Builder{base: base}
}

// WithOverride registers the agent-side override to apply on Build.
func (b *Builder) WithOverride(override *Override) *Builder {
	b.override = override
	return b
}

// Build composes the final Card.
func (b *Builder) Build() Card {
	card := b.base
	if b.override == nil {
		return card
	}
	if b.override.Name != "" {
		card.Name = b.override.Name
	}
	if b.override.Description != "" {
		card.Description = b.override.Description
	}
	if len(b.override.Skills) > 0 {
		card.Skills = b.override.Skills
	}
	return card
}

// Visible reports whether card should be included in an unauthenticated
// discovery listing, or one made by an authenticated caller.
func Visible(card Card, authenticated bool) bool {
	switch card.Visibility {
	case VisibilityInternal, VisibilityPrivate:
		return authenticated
	default:
		return true
	}
}
