//go:build windows

package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeCodepage(t *testing.T) {
	assert.Equal(t, "", decodeCodepage(437, nil))
	assert.Equal(t, "Record Name . . . . . : example.com", decodeCodepage(949, []byte("Record Name . . . . . : example.com")))

	// 0x82 is e-acute in CP437
	assert.Equal(t, "café.example", decodeCodepage(437, []byte{'c', 'a', 'f', 0x82, '.', 'e', 'x', 'a', 'm', 'p', 'l', 'e'}))

	// CP949 (Korean) two-byte sequence for U+AC00
	assert.Equal(t, "가", decodeCodepage(949, []byte{0xB0, 0xA1}))

	assert.Equal(t, "hé", decodeCodepage(codepageUTF8, []byte("hé")))
}
