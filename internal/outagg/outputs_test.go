package outagg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/errkind"
)

func TestSetGetRoundTrip(t *testing.T) {
	a := NewAggregator(nil)
	id := a.Add(&LogOutput{})

	on, err := a.Get(id)
	assert.NoError(t, err)
	assert.False(t, on)

	assert.NoError(t, a.Set(id, true))
	on, err = a.Get(id)
	assert.NoError(t, err)
	assert.True(t, on)
}

func TestGetUnknownOutput(t *testing.T) {
	a := NewAggregator(nil)
	_, err := a.Get(999)
	assert.True(t, errkind.Is(err, errkind.Invalid))
}

func TestSetUnknownOutput(t *testing.T) {
	a := NewAggregator(nil)
	err := a.Set(999, true)
	assert.True(t, errkind.Is(err, errkind.Invalid))
}
