package headless

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{200000, "200,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatNumber(tt.n))
	}
}

func TestLogger_Levels(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(parseLogLevel("quiet"), &out)

	l.Step("navigate")
	l.Action("click", "#buy", 1)
	l.Verbosef("hidden")
	assert.Empty(t, out.String())

	l.Warningf("budget at %d%%", 90)
	assert.Contains(t, out.String(), "Warning: budget at 90%")

	out.Reset()
	l = NewLogger(parseLogLevel("verbose"), &out)
	l.Action("click", "#buy", 2)
	assert.Contains(t, out.String(), "Action: click #buy (#2)")

	assert.Equal(t, LogLevelNormal, parseLogLevel("chatty"))
}
