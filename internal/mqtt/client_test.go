package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTopic(t *testing.T) {
	assert.Equal(t, "camera/door/alerts", FormatTopic("camera/{camera}/alerts", "door"))
	assert.Equal(t, "camera/alerts", FormatTopic("camera/alerts", "door"))
}
