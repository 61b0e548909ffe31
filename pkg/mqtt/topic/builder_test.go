package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	b := NewTopicBuilder("flightrelay/v1")

	assert.Equal(t, "flightrelay/v1/result/copter-7", b.Result("copter-7"))
	assert.Equal(t, "flightrelay/v1/link/copter-7", b.Link("copter-7"))
}

func TestBuilderTrimsRoot(t *testing.T) {
	b := NewTopicBuilder("fleet/relay/")
	assert.Equal(t, "fleet/relay/link/v1", b.Link("v1"))
}
