package types

// WellKnown is a struct for a well-known response.
type WellKnown struct {
	Links []WellKnownLink `json:"links"`
}

// WellKnownLink is a struct for the links field of a well-known response.
type WellKnownLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// WebFinger is a struct for a WebFinger response.
type WebFinger struct {
	Subject string          `json:"subject"`
	Links   []WebFingerLink `json:"links"`
}

// WebFingerLink is a struct for the links field of a WebFinger response.
type WebFingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

// ---------------------------------------------------------------------

// NodeInfo is a struct for a NodeInfo response.
type NodeInfo struct {
	Version           string           `json:"version,omitempty" yaml:"version"`
	Software          NodeInfoSoftware `json:"software,omitempty" yaml:"software"`
	Protocols         []string         `json:"protocols,omitempty" yaml:"protocols"`
	OpenRegistrations bool             `json:"openRegistrations" yaml:"openRegistrations"`
	Metadata          NodeInfoMetadata `json:"metadata" yaml:"metadata"`
}

// NodeInfoSoftware is a struct for the software field of a NodeInfo response.
type NodeInfoSoftware struct {
	Name    string `json:"name,omitempty" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version"`
}

// NodeInfoMetadata is a struct for the metadata field of a NodeInfo response.
type NodeInfoMetadata struct {
	NodeName        string `json:"nodeName,omitempty" yaml:"nodeName"`
	NodeDescription string `json:"nodeDescription,omitempty" yaml:"nodeDescription"`
}

// ---------------------------------------------------------------------

// ActorType enumerates the actor types accepted from remote servers.
type ActorType string

const (
	ActorTypeApplication  ActorType = "Application"
	ActorTypeGroup        ActorType = "Group"
	ActorTypeOrganization ActorType = "Organization"
	ActorTypePerson       ActorType = "Person"
	ActorTypeService      ActorType = "Service"
)

func (t ActorType) Valid() bool {
	switch t {
	case ActorTypeApplication, ActorTypeGroup, ActorTypeOrganization,
		ActorTypePerson, ActorTypeService:
		return true
	}
	return false
}

// PublicKey is a struct for the publicKey field of an actor.
type PublicKey struct {
	ID           string `json:"id,omitempty"`
	Type         string `json:"type,omitempty"`
	Owner        string `json:"owner,omitempty"`
	PublicKeyPem string `json:"publicKeyPem,omitempty"`
}

// Icon is a struct for the icon field of an actor.
type Icon struct {
	Type      string `json:"type,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Actor is the wire representation of a local or remote federation
// participant.
type Actor struct {
	Context                   any       `json:"@context,omitempty"`
	ID                        string    `json:"id"`
	Type                      ActorType `json:"type"`
	Name                      string    `json:"name,omitempty"`
	Summary                   string    `json:"summary,omitempty"`
	PreferredUsername         string    `json:"preferredUsername,omitempty"`
	URL                       string    `json:"url,omitempty"`
	Inbox                     string    `json:"inbox"`
	Outbox                    string    `json:"outbox,omitempty"`
	Icon                      *Icon     `json:"icon,omitempty"`
	PublicKey                 PublicKey `json:"publicKey,omitempty"`
	ManuallyApprovesFollowers bool      `json:"manuallyApprovesFollowers,omitempty"`
	AlsoKnownAs               []string  `json:"alsoKnownAs,omitempty"`
}

// Activity is the envelope of a received AS2 activity. Object is open
// because remote servers send either a bare URL or an embedded document.
type Activity struct {
	Context any        `json:"@context,omitempty"`
	ID      string     `json:"id"`
	Actor   string     `json:"actor"`
	Type    string     `json:"type"`
	Object  *RawObject `json:"object,omitempty"`
}

// ObjectType returns the embedded object's type, or "" when the object is
// absent or a bare reference.
func (a Activity) ObjectType() string {
	if a.Object == nil {
		return ""
	}
	return a.Object.Type()
}

// ---------------------------------------------------------------------

// InboxEntryStatus tracks an entry through the processing state machine.
type InboxEntryStatus string

const (
	EntryCreated        InboxEntryStatus = "created"
	EntrySynced         InboxEntryStatus = "synced"
	EntryError          InboxEntryStatus = "error"
	EntryNotImplemented InboxEntryStatus = "not_implemented"
)

func (s InboxEntryStatus) Valid() bool {
	switch s {
	case EntryCreated, EntrySynced, EntryError, EntryNotImplemented:
		return true
	}
	return false
}

// FollowStatus is the state of a follow relationship.
type FollowStatus string

const (
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
)

// ---------------------------------------------------------------------

// ApConfig carries the local actor's identity and key material. It is
// injected into every component that needs it.
type ApConfig struct {
	FQDN          string `yaml:"fqdn"`
	Username      string `yaml:"username"`
	Name          string `yaml:"name"`
	Summary       string `yaml:"summary"`
	PublicKeyPem  string `yaml:"publicKey"`
	PrivateKeyPem string `yaml:"privateKey"`
}

func (c ApConfig) ActorURL() string {
	return "https://" + c.FQDN + "/actors/" + c.Username
}

func (c ApConfig) KeyID() string {
	return c.ActorURL() + "#main-key"
}

func (c ApConfig) InboxURL() string {
	return c.ActorURL() + "/inbox"
}

func (c ApConfig) OutboxURL() string {
	return c.ActorURL() + "/outbox"
}

// MainActor builds the local actor document advertised to remote servers.
func (c ApConfig) MainActor() Actor {
	return Actor{
		Context: []any{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
			map[string]any{
				"manuallyApprovesFollowers": "as:manuallyApprovesFollowers",
			},
		},
		ID:                c.ActorURL(),
		Type:              ActorTypePerson,
		Name:              c.Name,
		Summary:           c.Summary,
		PreferredUsername: c.Username,
		URL:               c.ActorURL(),
		Inbox:             c.InboxURL(),
		Outbox:            c.OutboxURL(),
		PublicKey: PublicKey{
			ID:           c.KeyID(),
			Type:         "Key",
			Owner:        c.ActorURL(),
			PublicKeyPem: c.PublicKeyPem,
		},
	}
}
