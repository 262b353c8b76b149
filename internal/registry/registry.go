// Package registry owns the saved server profiles and the single "active server" value.
//
// Every mutation is serialized through a [Registry]. Other components never cache the active profile;
// they react to [Event] values from [Registry.Subscribe] or [Registry.ObserveActive] and re-read
// [Registry.Active] when they need the live record.
package registry

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

// EventKind enumerates registry notifications.
type EventKind int

const (
	// EventActivated is sent when a different profile (or none) becomes active.
	EventActivated EventKind = iota
	// EventCredentialsChanged is sent when the active profile's URL or credentials are edited.
	EventCredentialsChanged
	// EventEdited is sent when only the active profile's label is edited.
	EventEdited
)

func (k EventKind) String() string {
	switch k {
	case EventActivated:
		return "activated"
	case EventCredentialsChanged:
		return "credentials_changed"
	case EventEdited:
		return "edited"
	default:
		return "unknown"
	}
}

// Event carries a copy of the active profile after the change; Active is nil when no server is active.
type Event struct {
	Kind   EventKind
	Active *models.ServerProfile
}

// ActiveID returns the id of the active profile or "".
func (e Event) ActiveID() string {
	if e.Active == nil {
		return ""
	}
	return e.Active.ID()
}

// Store is the persistence the registry needs. [repositories.ServerRepository] implements it.
type Store interface {
	Create(server *models.ServerProfile) error
	Get(id string) (*models.ServerProfile, error)
	Update(server *models.ServerProfile) error
	List(criteria map[string]any) ([]*models.ServerProfile, error)
	Active() (*models.ServerProfile, error)
	SetActive(id string) error
	DeleteAndPromote(id string) (string, error)
	EnsureActive() (string, error)
}

// ServerUpdate lists the fields to change; nil fields are left as they are.
type ServerUpdate struct {
	Label          *string
	BaseURL        *string
	Username       *string
	Secret         *string
	CredentialKind *models.CredentialKind
}

// Registry is the single owner of server profiles.
type Registry struct {
	mu       sync.Mutex
	store    Store
	logger   *log.Logger
	activeID string
	revision uint64

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates a registry over store. Call [Registry.Init] before use.
func New(store Store, logger *log.Logger) *Registry {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Registry{
		store:  store,
		logger: shared.WithLogger(logger, "component", "registry"),
		subs:   make(map[int]chan Event),
	}
}

// Init loads the active profile, promoting the most recently added one when the store has profiles but none is active.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.store.EnsureActive()
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	r.activeID = id
	r.logger.Debug("registry initialized", "active", id)
	return nil
}

// Add saves a new profile and returns its id. The first profile becomes active.
func (r *Registry) Add(profile *models.ServerProfile) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Create(profile); err != nil {
		return "", err
	}
	r.logger.Info("added server", "id", profile.ID(), "url", profile.BaseURL())

	if profile.Active() {
		r.activeID = profile.ID()
		r.publish(Event{Kind: EventActivated, Active: profile.Clone()})
	}
	return profile.ID(), nil
}

// Update edits a profile. Changing the URL or credentials of the active profile publishes [EventCredentialsChanged];
// any other effective edit of the active profile publishes [EventEdited]. Edits that change nothing are silent.
func (r *Registry) Update(id string, upd ServerUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, err := r.store.Get(id)
	if err != nil {
		return err
	}

	credentialsChanged, edited := false, false
	if upd.Label != nil {
		edited = profile.Label() != *upd.Label
		profile.SetLabel(*upd.Label)
	}
	if upd.BaseURL != nil {
		before := profile.BaseURL()
		profile.SetBaseURL(*upd.BaseURL)
		credentialsChanged = credentialsChanged || before != profile.BaseURL()
	}
	if upd.Username != nil {
		before := profile.Username()
		profile.SetUsername(*upd.Username)
		credentialsChanged = credentialsChanged || before != profile.Username()
	}
	if upd.Secret != nil {
		credentialsChanged = credentialsChanged || profile.Secret() != *upd.Secret
		profile.SetSecret(*upd.Secret)
	}
	if upd.CredentialKind != nil {
		credentialsChanged = credentialsChanged || profile.CredentialKind() != *upd.CredentialKind
		profile.SetCredentialKind(*upd.CredentialKind)
	}

	if err := r.store.Update(profile); err != nil {
		return err
	}
	r.logger.Info("updated server", "id", id, "credentials_changed", credentialsChanged)

	if id != r.activeID {
		return nil
	}
	switch {
	case credentialsChanged:
		r.publish(Event{Kind: EventCredentialsChanged, Active: profile.Clone()})
	case edited:
		r.publish(Event{Kind: EventEdited, Active: profile.Clone()})
	}
	return nil
}

// Delete removes a profile. When it was active, the most recently added remaining profile is activated
// in the same transaction; deleting the last profile leaves no active server.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	activeID, err := r.store.DeleteAndPromote(id)
	if err != nil {
		return err
	}
	r.logger.Info("deleted server", "id", id, "active", activeID)

	if activeID == r.activeID {
		return nil
	}
	return r.activated(activeID)
}

// SetActive makes id the active profile.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SetActive(id); err != nil {
		return err
	}
	if id == r.activeID {
		return nil
	}
	r.logger.Info("activated server", "id", id)
	return r.activated(id)
}

// activated records the new active id and publishes it. Caller holds mu.
func (r *Registry) activated(id string) error {
	r.activeID = id
	if id == "" {
		r.publish(Event{Kind: EventActivated})
		return nil
	}

	profile, err := r.store.Get(id)
	if err != nil {
		return fmt.Errorf("failed to load activated server: %w", err)
	}
	r.publish(Event{Kind: EventActivated, Active: profile})
	return nil
}

// Active returns a fresh copy of the active profile or [shared.ErrNoActiveServer].
func (r *Registry) Active() (*models.ServerProfile, error) {
	return r.store.Active()
}

// ActiveID returns the id of the active profile or "".
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Revision increases every time an event is published. Readers compare it to detect a stale view.
func (r *Registry) Revision() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revision
}

// Get returns a copy of the profile with id or [shared.ErrNotFound].
func (r *Registry) Get(id string) (*models.ServerProfile, error) {
	return r.store.Get(id)
}

// List returns all profiles ordered by creation.
func (r *Registry) List() ([]*models.ServerProfile, error) {
	return r.store.List(nil)
}
