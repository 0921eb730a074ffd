package backup

import "context"

// Item is the unit of data handed to a destination adapter.
type Item struct {
	Key         string
	Name        string
	Description string
	MimeType    string
	Data        []byte
}

// RemoteRef identifies an uploaded item at a destination.
type RemoteRef struct {
	ID  string
	URL string
}

// Adapter is the uniform destination contract. One adapter instance exists
// per registered location; concrete provider SDK types never cross this
// boundary.
type Adapter interface {
	Upload(ctx context.Context, item Item) (RemoteRef, error)
	Delete(ctx context.Context, remoteID string) error
	// Probe is a lightweight reachability check, safe to call frequently.
	Probe(ctx context.Context) error
	// Quota returns used and limit bytes. Destinations without a quota API
	// return (0, 0, nil).
	Quota(ctx context.Context) (used, limit int64, err error)
}
