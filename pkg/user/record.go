// Package user defines the stored user record and its derived external link.
package user

// Record is a stored user together with its derived external link.
//
// ExternalLink is not authoritative in storage; it is filled from the remote
// link service. An empty ExternalLink means the link is absent.
type Record struct {
	ID           int64  `json:"id"`
	ExternalLink string `json:"external_link"`
}

// HasLink reports whether the derived link is present.
func (r Record) HasLink() bool {
	return r.ExternalLink != ""
}

// WithLink returns a copy of the record carrying link.
func (r Record) WithLink(link string) Record {
	r.ExternalLink = link
	return r
}
