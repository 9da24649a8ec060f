package manifest

// Kind selects the sandbox isolation strategy for an extension
type Kind string

const (
	KindIframe Kind = "iframe"
	KindWorker Kind = "worker"
)

// Slot is a named UI mount point for iframe extensions
type Slot string

const (
	SlotMain      Slot = "main"
	SlotSecondary Slot = "secondary"
	SlotSidebar   Slot = "sidebar"
)

// Manifest is the package descriptor published by an extension author.
type Manifest struct {
	ID               string       `json:"id" yaml:"id" toml:"id" validate:"required,extid"`
	Name             string       `json:"name" yaml:"name" toml:"name" validate:"required"`
	Version          string       `json:"version" yaml:"version" toml:"version" validate:"required,semver"`
	Author           string       `json:"author" yaml:"author" toml:"author" validate:"required"`
	Icon             string       `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
	Description      string       `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Kind             Kind         `json:"kind" yaml:"kind" toml:"kind" validate:"required,oneof=iframe worker"`
	Slot             Slot         `json:"slot,omitempty" yaml:"slot,omitempty" toml:"slot,omitempty" validate:"omitempty,oneof=main secondary sidebar"`
	Permissions      []Permission `json:"permissions" yaml:"permissions" toml:"permissions" validate:"dive,permission"`
	Entry            string       `json:"entry" yaml:"entry" toml:"entry" validate:"required"`
	Integrity        string       `json:"integrity,omitempty" yaml:"integrity,omitempty" toml:"integrity,omitempty" validate:"omitempty,startswith=sha256-"`
	CodeURL          string       `json:"codeUrl,omitempty" yaml:"codeUrl,omitempty" toml:"codeUrl,omitempty" validate:"omitempty,url"`
	PublishedAt      string       `json:"publishedAt,omitempty" yaml:"publishedAt,omitempty" toml:"publishedAt,omitempty"`
	ActivationEvents []string     `json:"activationEvents,omitempty" yaml:"activationEvents,omitempty" toml:"activationEvents,omitempty"`
	Contributes      Contributes  `json:"contributes,omitempty" yaml:"contributes,omitempty" toml:"contributes,omitempty"`
	Engines          Engines      `json:"engines,omitempty" yaml:"engines,omitempty" toml:"engines,omitempty"`
}

// Contributes lists static contributions declared ahead of activation
type Contributes struct {
	Commands []CommandContribution `json:"commands,omitempty" yaml:"commands,omitempty" toml:"commands,omitempty" validate:"dive"`
	Views    []ViewContribution    `json:"views,omitempty" yaml:"views,omitempty" toml:"views,omitempty" validate:"dive"`
}

// CommandContribution is a command the extension promises to register
type CommandContribution struct {
	ID    string `json:"id" yaml:"id" toml:"id" validate:"required"`
	Title string `json:"title" yaml:"title" toml:"title" validate:"required"`
}

// ViewContribution is a view the extension renders into a slot
type ViewContribution struct {
	ID   string `json:"id" yaml:"id" toml:"id" validate:"required"`
	Name string `json:"name" yaml:"name" toml:"name" validate:"required"`
	Slot Slot   `json:"slot,omitempty" yaml:"slot,omitempty" toml:"slot,omitempty" validate:"omitempty,oneof=main secondary sidebar"`
}

// Engines bounds the host versions an extension supports
type Engines struct {
	MinHostVersion string `json:"minHostVersion,omitempty" yaml:"minHostVersion,omitempty" toml:"minHostVersion,omitempty" validate:"omitempty,semver"`
	MaxHostVersion string `json:"maxHostVersion,omitempty" yaml:"maxHostVersion,omitempty" toml:"maxHostVersion,omitempty" validate:"omitempty,semver"`
}

// MountSlot returns the slot an iframe extension renders into. Worker
// extensions have no slot.
func (m Manifest) MountSlot() Slot {
	if m.Kind != KindIframe {
		return ""
	}
	if m.Slot == "" {
		return SlotMain
	}
	return m.Slot
}

// Clone returns a deep copy so callers never share slices with a cache.
func (m Manifest) Clone() Manifest {
	out := m
	out.Permissions = append([]Permission(nil), m.Permissions...)
	out.ActivationEvents = append([]string(nil), m.ActivationEvents...)
	out.Contributes.Commands = append([]CommandContribution(nil), m.Contributes.Commands...)
	out.Contributes.Views = append([]ViewContribution(nil), m.Contributes.Views...)
	return out
}
