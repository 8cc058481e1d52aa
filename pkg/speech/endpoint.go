package speech

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint describes where a service lives. It is a plain value; copy it freely.
type Endpoint struct {
	Protocol string
	Host     string
	Port     int
	Path     string
	// Query is a static query string placed before any client parameters
	Query string
	// PrefixWithRegion builds the host as {region}.{Host} when a region is set
	PrefixWithRegion bool
}

var (
	// DefaultAuthEndpoint issues tokens for the Bing Speech API
	DefaultAuthEndpoint = Endpoint{
		Protocol: "https",
		Host:     "api.cognitive.microsoft.com",
		Port:     443,
		Path:     "/sts/v1.0/issueToken",
	}

	// DefaultRecognitionEndpoint is the Bing Speech recognition service
	DefaultRecognitionEndpoint = Endpoint{
		Protocol: "https",
		Host:     "speech.platform.bing.com",
		Port:     443,
		Path:     "/speech/recognition",
	}

	// SpeechServiceAuthEndpoint issues tokens for the regional Speech Service
	SpeechServiceAuthEndpoint = Endpoint{
		Protocol:         "https",
		Host:             "api.cognitive.microsoft.com",
		Port:             443,
		Path:             "/sts/v1.0/issueToken",
		PrefixWithRegion: true,
	}

	// SpeechServiceEndpoint is the regional Speech Service recognition endpoint
	SpeechServiceEndpoint = Endpoint{
		Protocol:         "https",
		Host:             "stt.speech.microsoft.com",
		Port:             443,
		Path:             "/speech/recognition",
		PrefixWithRegion: true,
	}
)

// IsZero reports whether the endpoint is unset
func (e Endpoint) IsZero() bool {
	return e.Host == ""
}

// HostFor returns the host name used for region, prefixed when the endpoint asks for it
func (e Endpoint) HostFor(region string) string {
	if e.PrefixWithRegion && region != "" {
		return strings.ToLower(region) + "." + e.Host
	}
	return e.Host
}

// URL builds the endpoint address for region.
// Default ports for the protocol are left out of the host.
func (e Endpoint) URL(region string) *url.URL {
	protocol := e.Protocol
	if protocol == "" {
		protocol = "https"
	}

	host := e.HostFor(region)
	if e.Port > 0 && !isDefaultPort(protocol, e.Port) {
		host = host + ":" + strconv.Itoa(e.Port)
	}

	path := e.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &url.URL{
		Scheme:   protocol,
		Host:     host,
		Path:     path,
		RawQuery: strings.TrimPrefix(e.Query, "?"),
	}
}

// String returns the address without a region
func (e Endpoint) String() string {
	return e.URL("").String()
}

// ParseEndpoint builds an Endpoint from an absolute URL such as
// "https://westus.stt.speech.microsoft.com/speech/recognition".
func ParseEndpoint(raw string, prefixWithRegion bool) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: scheme and host are required", raw)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid endpoint port %q: %w", p, err)
		}
	} else {
		port = defaultPort(u.Scheme)
	}

	return Endpoint{
		Protocol:         strings.ToLower(u.Scheme),
		Host:             u.Hostname(),
		Port:             port,
		Path:             u.Path,
		Query:            u.RawQuery,
		PrefixWithRegion: prefixWithRegion,
	}, nil
}

func defaultPort(protocol string) int {
	switch strings.ToLower(protocol) {
	case "http", "ws":
		return 80
	case "https", "wss":
		return 443
	default:
		return 0
	}
}

func isDefaultPort(protocol string, port int) bool {
	return defaultPort(protocol) == port
}
