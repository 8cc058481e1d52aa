package speech

import "testing"

func TestEndpoint_URL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint Endpoint
		region   string
		want     string
	}{
		{
			name:     "default auth endpoint ignores region",
			endpoint: DefaultAuthEndpoint,
			region:   "westus",
			want:     "https://api.cognitive.microsoft.com/sts/v1.0/issueToken",
		},
		{
			name:     "region prefix is lowercased",
			endpoint: SpeechServiceEndpoint,
			region:   "WestUS",
			want:     "https://westus.stt.speech.microsoft.com/speech/recognition",
		},
		{
			name:     "prefix without region keeps host",
			endpoint: SpeechServiceEndpoint,
			want:     "https://stt.speech.microsoft.com/speech/recognition",
		},
		{
			name:     "non default port and static query",
			endpoint: Endpoint{Protocol: "http", Host: "speech.internal", Port: 8080, Path: "recognize", Query: "?cid=abc"},
			want:     "http://speech.internal:8080/recognize?cid=abc",
		},
		{
			name:     "protocol defaults to https",
			endpoint: Endpoint{Host: "example.com", Port: 443, Path: "/p"},
			want:     "https://example.com/p",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.endpoint.URL(tt.region).String(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("http://127.0.0.1:9000/speech/recognition?cid=1", false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := Endpoint{Protocol: "http", Host: "127.0.0.1", Port: 9000, Path: "/speech/recognition", Query: "cid=1"}
	if e != want {
		t.Errorf("ParseEndpoint() = %+v, want %+v", e, want)
	}

	e, err = ParseEndpoint("https://stt.speech.microsoft.com/speech/recognition", true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if e.Port != 443 || !e.PrefixWithRegion {
		t.Errorf("Expected default https port and region prefix, got %+v", e)
	}

	for _, bad := range []string{"", "not a url", "/relative/path", "http://"} {
		if _, err := ParseEndpoint(bad, false); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
