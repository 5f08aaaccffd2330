package ann

import "time"

// Health is the status report of one resource.
type Health struct {
	Name        string    `json:"name"`
	Key         string    `json:"source"`
	Path        string    `json:"path"`
	Status      Status    `json:"status"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	TsRead      string    `json:"ts_read,omitempty"`
	NIDs        int       `json:"n_ids"`
	Head5       []string  `json:"head5_ids"`
	Parent      string    `json:"fallback_parent,omitempty"`
	OOI         string    `json:"ooi,omitempty"`
	LastLoad    string    `json:"last_load,omitempty"`
	LastAttempt string    `json:"last_attempt,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Health reports the serving snapshot and the outcome of the last load.
func (r *Resource) Health() Health {
	h := Health{
		Name:   r.name,
		Key:    r.key,
		Path:   r.dir,
		Status: r.Status(),
		Parent: r.parent,
		Head5:  []string{},
	}
	switch {
	case r.ooiName != "":
		h.OOI = r.ooiName
	case r.sibling != "":
		h.OOI = r.sibling
	}

	if snap := r.snap.Load(); snap != nil {
		meta := snap.Metadata
		h.Metadata = &meta
		h.TsRead = snap.ExtractedAt.Format(time.RFC3339Nano)
		h.NIDs = snap.IDs.Len()
		h.Head5 = snap.IDs.Head(5)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastLoad.IsZero() {
		h.LastLoad = r.lastLoad.UTC().Format(time.RFC3339)
	}
	if !r.lastAttempt.IsZero() {
		h.LastAttempt = r.lastAttempt.UTC().Format(time.RFC3339)
	}
	if r.lastErr != nil {
		h.LastError = r.lastErr.Error()
	}
	return h
}
