package utils

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/common/test/assert"
)

func TestParseClockTime(t *testing.T) {
	parsed, err := ParseClockTime("14:30:05 ACDT")
	assert.Nil(t, err)
	assert.DeepEqual(t, 14, parsed.Hour())
	assert.DeepEqual(t, 30, parsed.Minute())
	assert.DeepEqual(t, 5, parsed.Second())

	parsed, err = ParseClockTime("00:00:00")
	assert.Nil(t, err)
	assert.DeepEqual(t, 0, parsed.Hour())

	for _, bad := range []string{"", "   ", "24:00:00", "9:5", "ab:cd:ef"} {
		_, err := ParseClockTime(bad)
		assert.NotNil(t, err)
	}
}

func TestFormat12Hour(t *testing.T) {
	parsed, err := ParseClockTime("09:05:00")
	assert.Nil(t, err)
	assert.DeepEqual(t, "9:05AM", Format12Hour(parsed))
}
