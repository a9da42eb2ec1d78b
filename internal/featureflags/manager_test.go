package featureflags

import (
	"strconv"
	"testing"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, "1"), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, "1"), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,junk=abc%")

	assert.True(t, m.Enabled("always", "1"))
	assert.True(t, m.Enabled("always", ""), "100% includes anonymous viewers")
	assert.False(t, m.Enabled("never", "1"))
	assert.False(t, m.Enabled("junk", "1"))

	first := m.Enabled("canary", "42")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", "42"), "rollout must be deterministic per viewer")
	}
	assert.False(t, m.Enabled("canary", ""), "percentage rollout requires a viewer")
}

func TestEnabled_RolloutSpread(t *testing.T) {
	m := NewManager("half=50%")
	on := 0
	for i := 1; i <= 1000; i++ {
		if m.Enabled("half", models.ID(strconv.Itoa(i))) {
			on++
		}
	}
	assert.InDelta(t, 500, on, 150)
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,X=on, y = 20% ,z=off ")

	raw := m.Raw()
	assert.Equal(t, map[string]string{"x": "on", "y": "20%", "z": "off"}, raw)

	snap := m.Snapshot("123")
	assert.Len(t, snap, 3)
	assert.True(t, snap["x"])
	assert.False(t, snap["z"])
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(ForumMarkdown, "1"))
	assert.Empty(t, m.Raw())
	assert.Empty(t, m.Snapshot("1"))
}
