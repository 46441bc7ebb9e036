package settings

import "degen-dashboard-go/internal/models"

// Store defines the interface for local dashboard settings persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
//
// The polling pipeline never writes through this interface. Every mutation
// here corresponds to an explicit user action: logging in or out, pinning a
// backend address, or switching the chart watch.
type Store interface {
	// SaveSession atomically saves the login session as a single record.
	SaveSession(session *models.Session) error

	// LoadSession loads the persisted session.
	// If no session is found, it returns (nil, nil).
	LoadSession() (*models.Session, error)

	// ClearSession removes the persisted session, if any.
	ClearSession() error

	// SaveEndpointOverride pins an explicit backend address.
	SaveEndpointOverride(rawURL string) error

	// LoadEndpointOverride returns the pinned backend address.
	// If none is set, it returns ("", nil).
	LoadEndpointOverride() (string, error)

	// ClearEndpointOverride removes the pinned backend address, if any.
	ClearEndpointOverride() error

	// SaveWatch saves the chart symbol and timeframe selection.
	SaveWatch(watch models.Watch) error

	// LoadWatch loads the persisted chart selection.
	// If none is found, it returns (nil, nil).
	LoadWatch() (*models.Watch, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
