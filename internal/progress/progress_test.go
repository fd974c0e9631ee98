package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarAddDoesNotPanicOnNil(t *testing.T) {
	var b *Bar
	assert.NotPanics(t, func() {
		b.Add(5)
		b.Close()
	})
}

func TestNewProgressBarWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(&buf, 10, "testing")
	_ = bar.Add(1)
	_ = bar.Close()
	assert.NotEmpty(t, buf.String())
}
