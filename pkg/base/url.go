package base

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultPort is the default RTSP port.
const DefaultPort = "554"

// URL is a RTSP URL.
// This is basically an HTTP URL with some additional functions to handle
// control attributes.
type URL url.URL

// ParseURL parses a RTSP URL.
func ParseURL(s string) (*URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "rtsp" {
		return nil, fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}

	if u.Opaque != "" {
		return nil, fmt.Errorf("URLs with opaque data are not supported")
	}

	if u.Fragment != "" {
		return nil, fmt.Errorf("URLs with fragments are not supported")
	}

	return (*URL)(u), nil
}

// MustParseURL is like ParseURL but panics in case of errors.
func MustParseURL(s string) *URL {
	u, err := ParseURL(s)
	if err != nil {
		panic(err)
	}
	return u
}

// String implements fmt.Stringer.
func (u *URL) String() string {
	return (*url.URL)(u).String()
}

// Clone clones a URL.
func (u *URL) Clone() *URL {
	return (*URL)(&url.URL{
		Scheme:     u.Scheme,
		User:       u.User,
		Host:       u.Host,
		Path:       u.Path,
		RawPath:    u.RawPath,
		ForceQuery: u.ForceQuery,
		RawQuery:   u.RawQuery,
	})
}

// CloneWithoutCredentials clones a URL without its credentials.
func (u *URL) CloneWithoutCredentials() *URL {
	return (*URL)(&url.URL{
		Scheme:     u.Scheme,
		Host:       u.Host,
		Path:       u.Path,
		RawPath:    u.RawPath,
		ForceQuery: u.ForceQuery,
		RawQuery:   u.RawQuery,
	})
}

// Hostname returns the host without the port.
func (u *URL) Hostname() string {
	return (*url.URL)(u).Hostname()
}

// CanonicalAddr returns the host with the port, filling the default port when missing.
func (u *URL) CanonicalAddr() string {
	port := (*url.URL)(u).Port()
	if port == "" {
		port = DefaultPort
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// Resolve resolves a control attribute against the URL.
// Absolute control attributes are returned as they are,
// relative ones are appended to the URL path.
func (u *URL) Resolve(control string) (*URL, error) {
	if strings.HasPrefix(control, "rtsp://") {
		ret, err := ParseURL(control)
		if err != nil {
			return nil, err
		}

		// add credentials
		ret.User = u.User

		return ret, nil
	}

	if control == "" || control == "*" {
		return u.Clone(), nil
	}

	ret := u.Clone()

	// insert the control attribute at the end of the path.
	// if there's a query, insert it after the query
	if ret.RawQuery != "" {
		ret.RawQuery += "/" + control
		return ret, nil
	}

	if !strings.HasSuffix(ret.Path, "/") {
		ret.Path += "/"
	}
	ret.Path += control
	ret.RawPath = ""

	return ret, nil
}
