package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterest(t *testing.T) {
	i := InterestConnect | InterestRead | InterestWrite
	assert.True(t, i.Has(InterestRead|InterestWrite))
	assert.False(t, i.Has(InterestAccept))
	assert.Equal(t, "connect|read|write", i.String())
	assert.Equal(t, "none", Interest(0).String())
	assert.Equal(t, "accept", InterestAccept.String())

	i &^= InterestConnect
	assert.Equal(t, "read|write", i.String())
}

func TestReadiness(t *testing.T) {
	r := Readable | Hangup
	assert.True(t, r.Has(Readable))
	assert.True(t, r.Has(Hangup))
	assert.False(t, r.Has(Writable))
	assert.False(t, r.Has(Readable|Writable))
}
