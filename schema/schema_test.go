package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticEntroidHasAttribute(t *testing.T) {
	e := &StaticEntroid{Must: []string{"cn", "sn"}, May: []string{"description"}}

	must, may := e.HasAttribute("CN")
	assert.True(t, must)
	assert.False(t, may)

	must, may = e.HasAttribute("description;lang-en")
	assert.False(t, must)
	assert.True(t, may)

	must, may = e.HasAttribute("unknownAttr")
	assert.False(t, must)
	assert.False(t, may)
}

func TestStaticEntroidRemove(t *testing.T) {
	e := &StaticEntroid{Must: []string{"cn"}, May: []string{"description"}}
	assert.True(t, e.Remove("CN"))
	assert.False(t, e.Remove("cn"))
	must, _ := e.HasAttribute("cn")
	assert.False(t, must)
}
