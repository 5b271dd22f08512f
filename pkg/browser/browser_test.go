package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/types"
)

func TestFirewall(t *testing.T) {
	tests := []struct {
		name  string
		allow []string
		deny  []string
		url   string
		want  bool
	}{
		{"empty allows everything", nil, nil, "https://example.com/a", true},
		{"deny wins over allow", []string{"https://*"}, []string{"https://bank.example.com*"}, "https://bank.example.com/transfer", false},
		{"allow list restricts", []string{"https://*.example.com/*"}, nil, "https://evil.test/", false},
		{"allow list matches", []string{"https://*.example.com/*"}, nil, "https://shop.example.com/cart", true},
		{"case insensitive", nil, []string{"file://*"}, "FILE:///etc/passwd", false},
		{"default deny keeps http", nil, []string{"file://*", "chrome://*", "javascript:*"}, "http://localhost:8080", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFirewall(tt.allow, tt.deny)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Allowed(tt.url))

			err = f.Check(tt.url)
			if tt.want {
				assert.NoError(t, err)
			} else {
				assert.True(t, types.IsKind(err, types.ErrKindURLNotAllowed))
				assert.True(t, types.IsNonRetryable(err))
			}
		})
	}
}

func TestFirewall_InvalidPattern(t *testing.T) {
	_, err := NewFirewall([]string{"https://[a-"}, nil)
	assert.Error(t, err)

	var nilFirewall *Firewall
	assert.True(t, nilFirewall.Allowed("file:///anything"))
}

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr string
	}{
		{"navigate", Action{Type: ActionNavigate, URL: "https://example.com"}, ""},
		{"navigate without url", Action{Type: ActionNavigate}, "requires a url"},
		{"click without selector", Action{Type: ActionClick}, "requires a selector"},
		{"fill", Action{Type: ActionFill, Selector: "#q", Value: "shoes"}, ""},
		{"wait for time", Action{Type: ActionWait, Amount: 500}, ""},
		{"wait for nothing", Action{Type: ActionWait}, "selector or a positive amount"},
		{"scroll default", Action{Type: ActionScroll}, ""},
		{"done", Action{Type: ActionDone}, ""},
		{"unknown", Action{Type: "hover"}, "unknown action type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAction_StringAndParams(t *testing.T) {
	a := Action{Type: ActionFill, Selector: "#email", Value: "me@example.com", Description: "enter email"}
	assert.Equal(t, `fill #email "me@example.com" (enter email)`, a.String())
	assert.Equal(t, map[string]interface{}{"selector": "#email", "value": "me@example.com"}, a.Params())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	out := truncate(strings.Repeat("é", 10), 5)
	assert.True(t, strings.HasPrefix(out, "éé\n\n[Content truncated: 4 of 20 bytes shown]"))
}
