// Package snapshot defines the captured browser-session state: cookies
// (global) plus localStorage/sessionStorage per origin. Snapshots are
// JSON-encodable so the persisted registry can store them as blobs.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// Cookie is the stored form of a browser cookie. It carries the subset of
// CDP cookie fields needed to recreate the cookie faithfully.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds; <= 0 means session cookie
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// OriginStorage is the web storage of a single origin.
type OriginStorage struct {
	Origin  string            `json:"origin"`
	Local   map[string]string `json:"local,omitempty"`
	Session map[string]string `json:"session,omitempty"`
}

// Snapshot is a point-in-time capture of session state across all origins
// visited while the session was established.
type Snapshot struct {
	Cookies    []Cookie        `json:"cookies,omitempty"`
	Origins    []OriginStorage `json:"origins,omitempty"`
	CapturedAt int64           `json:"captured_at"`
}

// New returns an empty snapshot stamped with the current time.
func New() *Snapshot {
	return &Snapshot{CapturedAt: time.Now().UnixMilli()}
}

// OriginList returns the origins this snapshot covers, in capture order.
func (s *Snapshot) OriginList() []string {
	out := make([]string, 0, len(s.Origins))
	for _, o := range s.Origins {
		out = append(out, o.Origin)
	}
	return out
}

// IsEmpty reports whether the snapshot carries no state at all.
func (s *Snapshot) IsEmpty() bool {
	if len(s.Cookies) > 0 {
		return false
	}
	for _, o := range s.Origins {
		if len(o.Local) > 0 || len(o.Session) > 0 {
			return false
		}
	}
	return true
}

// Encode serializes the snapshot for storage.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return data, nil
}

// Decode deserializes a stored snapshot blob.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return &s, nil
}

// FromProtoCookies converts CDP cookies into stored form.
func FromProtoCookies(cookies []*proto.NetworkCookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		stored := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		}
		if !c.Session {
			stored.Expires = float64(c.Expires)
		}
		out = append(out, stored)
	}
	return out
}

// ToParams converts stored cookies into the CDP form used to reapply them.
func (s *Snapshot) ToParams() []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			p.SameSite = proto.NetworkCookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		out = append(out, p)
	}
	return out
}
