package offline

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Request is the part of an intercepted fetch the controller needs.
type Request struct {
	Method string
	URL    *url.URL
	// Mode is the fetch mode ("navigate", "cors", ...), taken from Sec-Fetch-Mode.
	Mode   string
	Header http.Header
	// Body is forwarded on passthrough requests only; cached requests are GETs.
	Body []byte
}

// NewRequest builds a GET request for an absolute URL.
func NewRequest(u *url.URL) *Request {
	return &Request{Method: http.MethodGet, URL: u, Header: http.Header{}}
}

// Key identifies the request inside a cache generation.
func (r *Request) Key() string {
	return r.URL.String()
}

func (r *Request) accepts(mime string) bool {
	if r.Header == nil {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), mime)
}

// CachedResponse is a stored response body with its metadata.
type CachedResponse struct {
	Status   int         `json:"status" db:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body" db:"body"`
	StoredAt time.Time   `json:"stored_at" db:"stored_at"`
}

// Clone returns a deep copy so the caller and the cache never share buffers.
func (r *CachedResponse) Clone() *CachedResponse {
	if r == nil {
		return nil
	}
	return &CachedResponse{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		Body:     slices.Clone(r.Body),
		StoredAt: r.StoredAt,
	}
}

// RequestClass drives strategy selection.
type RequestClass string

const (
	ClassPassthrough RequestClass = "passthrough"
	ClassNavigation  RequestClass = "navigation"
	ClassAPI         RequestClass = "api"
	ClassStatic      RequestClass = "static"
)

// Strategy is a fetch-order preference.
type Strategy string

const (
	StrategyNetworkOnly     Strategy = "network-only"
	StrategyNetworkFirst    Strategy = "network-first"
	StrategyRaceWithTimeout Strategy = "race-with-timeout"
	StrategyCacheFirst      Strategy = "cache-first"
)

// Scope describes which requests the controller owns.
type Scope struct {
	Origin   *url.URL
	APIHosts []string
}

func (s Scope) sameOrigin(u *url.URL) bool {
	return s.Origin != nil && strings.EqualFold(u.Scheme, s.Origin.Scheme) && strings.EqualFold(u.Host, s.Origin.Host)
}

func (s Scope) isAPI(u *url.URL) bool {
	for _, h := range s.APIHosts {
		if strings.EqualFold(u.Host, h) {
			return true
		}
	}
	return false
}

// Classify assigns a request to its class. Only GET requests are cacheable;
// anything else, and anything outside the origin that is not a designated
// API host, passes through.
func Classify(r *Request, scope Scope) RequestClass {
	if r == nil || r.URL == nil || r.Method != http.MethodGet {
		return ClassPassthrough
	}
	if scope.isAPI(r.URL) {
		return ClassAPI
	}
	if !scope.sameOrigin(r.URL) {
		return ClassPassthrough
	}
	if r.Mode == "navigate" || r.accepts("text/html") {
		return ClassNavigation
	}
	return ClassStatic
}

// SelectStrategy is the pure class -> strategy table.
func SelectStrategy(class RequestClass) Strategy {
	switch class {
	case ClassNavigation:
		return StrategyNetworkFirst
	case ClassAPI:
		return StrategyRaceWithTimeout
	case ClassStatic:
		return StrategyCacheFirst
	default:
		return StrategyNetworkOnly
	}
}
