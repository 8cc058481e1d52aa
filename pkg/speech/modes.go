package speech

import (
	"fmt"
	"strings"
)

// RecognitionMode tunes the remote recognizer and is part of the request path
type RecognitionMode int

const (
	RecognitionModeInteractive RecognitionMode = iota
	RecognitionModeConversation
	RecognitionModeDictation
)

var recognitionModeNames = []string{"interactive", "conversation", "dictation"}

func (m RecognitionMode) String() string {
	if m < 0 || int(m) >= len(recognitionModeNames) {
		return fmt.Sprintf("RecognitionMode(%d)", int(m))
	}
	return recognitionModeNames[m]
}

// ParseRecognitionMode parses a mode name case-insensitively.
// An empty string yields the default, interactive.
func ParseRecognitionMode(s string) (RecognitionMode, error) {
	i, err := parseEnum(s, recognitionModeNames, "recognition mode")
	return RecognitionMode(i), err
}

// ProfanityMode controls how profanity appears in results; sent in the query
type ProfanityMode int

const (
	ProfanityModeMasked ProfanityMode = iota
	ProfanityModeRemoved
	ProfanityModeRaw
)

var profanityModeNames = []string{"masked", "removed", "raw"}

func (m ProfanityMode) String() string {
	if m < 0 || int(m) >= len(profanityModeNames) {
		return fmt.Sprintf("ProfanityMode(%d)", int(m))
	}
	return profanityModeNames[m]
}

// ParseProfanityMode parses a mode name case-insensitively
func ParseProfanityMode(s string) (ProfanityMode, error) {
	i, err := parseEnum(s, profanityModeNames, "profanity mode")
	return ProfanityMode(i), err
}

// OutputMode selects the response shape; sent in the query as "format"
type OutputMode int

const (
	OutputModeSimple OutputMode = iota
	OutputModeDetailed
)

var outputModeNames = []string{"simple", "detailed"}

func (m OutputMode) String() string {
	if m < 0 || int(m) >= len(outputModeNames) {
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
	return outputModeNames[m]
}

// ParseOutputMode parses a mode name case-insensitively
func ParseOutputMode(s string) (OutputMode, error) {
	i, err := parseEnum(s, outputModeNames, "output mode")
	return OutputMode(i), err
}

// AuthenticationMode selects how recognition requests carry the credential
type AuthenticationMode int

const (
	// AuthModeToken exchanges the subscription key for a bearer token
	AuthModeToken AuthenticationMode = iota
	// AuthModeSubscriptionKey sends the subscription key on every request
	AuthModeSubscriptionKey
)

func (m AuthenticationMode) String() string {
	switch m {
	case AuthModeToken:
		return "token"
	case AuthModeSubscriptionKey:
		return "key"
	default:
		return fmt.Sprintf("AuthenticationMode(%d)", int(m))
	}
}

// ParseAuthenticationMode accepts "token" or "key" (and a few aliases)
func ParseAuthenticationMode(s string) (AuthenticationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "token", "bearer", "authorizationtoken":
		return AuthModeToken, nil
	case "key", "subscription-key", "subscriptionkey":
		return AuthModeSubscriptionKey, nil
	default:
		return AuthModeToken, fmt.Errorf("unknown authentication mode %q", s)
	}
}

// RecognitionStatus is the outcome reported by the service
type RecognitionStatus string

const (
	StatusSuccess               RecognitionStatus = "Success"
	StatusNoMatch               RecognitionStatus = "NoMatch"
	StatusInitialSilenceTimeout RecognitionStatus = "InitialSilenceTimeout"
	StatusBabbleTimeout         RecognitionStatus = "BabbleTimeout"
	StatusError                 RecognitionStatus = "Error"
)

// IsSuccess reports whether speech was recognized
func (s RecognitionStatus) IsSuccess() bool {
	return s == StatusSuccess
}

func parseEnum(s string, names []string, what string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, s)
}
