package eta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := map[int]string{
		0:   "0m",
		15:  "15m",
		45:  "45m",
		59:  "59m",
		60:  "1h",
		61:  "1h 1m",
		90:  "1h 30m",
		120: "2h",
		125: "2h 5m",
		480: "8h",
	}
	for minutes, want := range tests {
		assert.Equal(t, want, Format(minutes), "minutes %d", minutes)
	}
}
