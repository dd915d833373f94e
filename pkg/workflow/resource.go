package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/homestar/pkg/ipld"
)

// Resource names code or data to fetch before a task can run. It is one of
// two variants: an opaque URL, or a direct content fingerprint. The worker
// looks either variant up in the local blob store by its String() form,
// then asks its network fetcher; no variant is fetched over HTTP.
type Resource struct {
	url         string
	fingerprint ipld.Fingerprint
	isFp        bool
}

// NewResourceURL builds a Resource naming an opaque URL.
func NewResourceURL(url string) Resource {
	return Resource{url: url}
}

// NewResourceFingerprint builds a Resource naming a direct content fingerprint.
func NewResourceFingerprint(fp ipld.Fingerprint) Resource {
	return Resource{fingerprint: fp, isFp: true}
}

// IsFingerprint reports whether r names a fingerprint rather than a URL.
func (r Resource) IsFingerprint() bool {
	return r.isFp
}

// URL returns the opaque URL form. Only meaningful when !IsFingerprint().
func (r Resource) URL() string {
	return r.url
}

// Fingerprint returns the direct fingerprint form. Only meaningful when IsFingerprint().
func (r Resource) Fingerprint() ipld.Fingerprint {
	return r.fingerprint
}

// String renders the resource as it appears in the "rsc" wire field.
func (r Resource) String() string {
	if r.isFp {
		return r.fingerprint.String()
	}
	return r.url
}

// MarshalJSON renders the resource as a bare JSON string, matching the
// `"rsc": "<url>"` wire shape; fingerprint-variant resources render as
// their base32 text form, which is itself a valid URL-less string.
func (r Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses a bare JSON string. If it parses as a fingerprint
// (CID text form), the Resource is treated as the fingerprint variant;
// otherwise it is kept as an opaque URL.
func (r *Resource) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("workflow: malformed resource: %w", err)
	}
	if fp, err := ipld.ParseFingerprint(s); err == nil {
		*r = NewResourceFingerprint(fp)
		return nil
	}
	*r = NewResourceURL(s)
	return nil
}
