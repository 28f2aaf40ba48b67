package bridge_test

import (
	"strings"
	"testing"

	"github.com/arzzra/call_bridge/pkg/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewEventCopiesAttributes проверяет, что событие не разделяет
// карту атрибутов с вызывающей стороной
func TestNewEventCopiesAttributes(t *testing.T) {
	attrs := map[string]any{
		bridge.AttrCallUUID: "u1",
		bridge.AttrHasVideo: true,
	}

	ev := bridge.NewEvent(bridge.EventCallReceived, attrs)

	attrs[bridge.AttrCallUUID] = "changed"
	delete(attrs, bridge.AttrHasVideo)

	assert.Equal(t, "u1", ev.CallUUID())
	assert.True(t, ev.BoolAttr(bridge.AttrHasVideo))
	assert.False(t, ev.Timestamp.IsZero(), "Event must carry a creation timestamp")
}

// TestEventNilAttributes проверяет событие без полезной нагрузки
func TestEventNilAttributes(t *testing.T) {
	ev := bridge.NewEvent(bridge.EventProviderReset, nil)

	assert.Nil(t, ev.Attributes)

	_, ok := ev.Attr(bridge.AttrCallUUID)
	assert.False(t, ok)
	assert.Empty(t, ev.CallUUID())
	assert.Empty(t, ev.StringAttr(bridge.AttrHandle))
	assert.False(t, ev.BoolAttr(bridge.AttrMuted))
}

// TestEventAttrAccessors проверяет типизированные аксессоры атрибутов
func TestEventAttrAccessors(t *testing.T) {
	ev := bridge.NewEvent(bridge.EventCallHeldChanged, map[string]any{
		bridge.AttrCallUUID: "u2",
		bridge.AttrOnHold:   true,
		bridge.AttrDigits:   "123#",
		"numeric":           42,
	})

	v, ok := ev.Attr("numeric")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	assert.Equal(t, "123#", ev.StringAttr(bridge.AttrDigits))
	assert.True(t, ev.BoolAttr(bridge.AttrOnHold))

	// Неверный тип дает нулевое значение, а не панику
	assert.Empty(t, ev.StringAttr("numeric"))
	assert.False(t, ev.BoolAttr(bridge.AttrDigits))
}

// TestEventClone проверяет глубокое копирование события
func TestEventClone(t *testing.T) {
	ev := bridge.NewEvent(bridge.EventCallReceived, map[string]any{
		bridge.AttrHandle: "+79161234567",
	})

	clone := ev.Clone()
	clone.Attributes[bridge.AttrHandle] = "tampered"

	assert.Equal(t, "+79161234567", ev.StringAttr(bridge.AttrHandle))
	assert.Equal(t, ev.Kind, clone.Kind)
	assert.Equal(t, ev.Timestamp, clone.Timestamp)
}

// TestEventString проверяет представление события для логов
func TestEventString(t *testing.T) {
	plain := bridge.NewEvent(bridge.EventProviderReset, nil)
	assert.Equal(t, "providerReset", plain.String())

	ev := bridge.NewEvent(bridge.EventCallReceived, map[string]any{
		bridge.AttrCallUUID: "u3",
		bridge.AttrHandle:   "+7916",
	})

	s := ev.String()
	assert.True(t, strings.HasPrefix(s, "callReceived{"), "String should start with the kind: %s", s)
	assert.Contains(t, s, "callUUID=u3")
	assert.Contains(t, s, "handle=+7916")

	// Ключи выводятся в детерминированном порядке
	assert.Equal(t, s, ev.String())
}
