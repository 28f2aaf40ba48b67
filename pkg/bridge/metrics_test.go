package bridge

import (
	"testing"
)

func newTestMetrics() *MetricsCollector {
	return NewMetricsCollector(&MetricsConfig{
		Enabled: true,
		Logger:  NoOpLogger{},
	})
}

// TestMetricsDisabled проверяет выключенный сборщик метрик
func TestMetricsDisabled(t *testing.T) {
	mc := NewMetricsCollector(&MetricsConfig{Enabled: false})

	// Все операции безопасны и ничего не считают
	mc.EventSubmitted(EventCallReceived, true)
	mc.EventDelivered(EventCallReceived, false)
	mc.BufferDepth(100)
	mc.ConsumerAttached()
	mc.RecordPanic("consumer")

	if counters := mc.GetPerformanceCounters(); counters != nil {
		t.Errorf("Disabled collector must return nil counters, got %v", counters)
	}

	check := mc.RunHealthCheck(nil)
	if check.Status != HealthUnknown {
		t.Errorf("Disabled collector must report unknown health, got %s", check.Status)
	}
}

// TestMetricsCounters проверяет основные счетчики
func TestMetricsCounters(t *testing.T) {
	mc := newTestMetrics()

	mc.EventSubmitted(EventCallReceived, true)
	mc.EventSubmitted(EventCallAnswered, true)
	mc.EventSubmitted(EventCallEnded, false)
	mc.EventDelivered(EventCallReceived, true)
	mc.EventDelivered(EventCallAnswered, true)
	mc.EventDelivered(EventCallEnded, false)
	mc.EventDropped(EventCallReceived)
	mc.BufferFlushed(2)
	mc.ConsumerAttached()
	mc.ConsumerDetached()
	mc.CoordinatorReset()
	mc.ErrorOccurred(ErrBufferOverflow(10, EventCallReceived))
	mc.RecordPanic("consumer")

	counters := mc.GetPerformanceCounters()
	expected := map[string]int64{
		"total_submitted": 3,
		"total_buffered":  2,
		"total_delivered": 3,
		"total_replayed":  2,
		"total_dropped":   1,
		"total_flushes":   1,
		"total_attaches":  1,
		"total_detaches":  1,
		"total_resets":    1,
		"total_errors":    1,
		"total_panics":    1,
	}
	for name, want := range expected {
		if got := counters[name]; got != want {
			t.Errorf("Counter %s: expected %d, got %d", name, want, got)
		}
	}
}

// TestMetricsBufferDepthHighWater проверяет пиковую глубину буфера
func TestMetricsBufferDepthHighWater(t *testing.T) {
	mc := newTestMetrics()

	mc.BufferDepth(3)
	mc.BufferDepth(7)
	mc.BufferDepth(2)

	counters := mc.GetPerformanceCounters()
	if counters["buffer_depth"] != 2 {
		t.Errorf("Expected current depth 2, got %d", counters["buffer_depth"])
	}
	if counters["buffer_high_water"] != 7 {
		t.Errorf("Expected high water 7, got %d", counters["buffer_high_water"])
	}
}

// TestMetricsReset проверяет обнуление счетчиков
func TestMetricsReset(t *testing.T) {
	mc := newTestMetrics()

	mc.EventSubmitted(EventCallReceived, true)
	mc.BufferDepth(5)
	mc.Reset()

	counters := mc.GetPerformanceCounters()
	for name, value := range counters {
		if value != 0 {
			t.Errorf("Counter %s must be zero after reset, got %d", name, value)
		}
	}
}

// TestHealthCheckHealthy проверяет здоровое состояние координатора
func TestHealthCheckHealthy(t *testing.T) {
	mc := newTestMetrics()
	c := New(WithLogger(NoOpLogger{}), WithMetrics(mc))
	c.EnsureInitialized()

	check := mc.RunHealthCheck(c)
	if check.Status != HealthHealthy {
		t.Errorf("Expected healthy status, got %s (errors: %v)", check.Status, check.Errors)
	}
	if check.Components["coordinator"] != "healthy" {
		t.Errorf("Expected healthy coordinator, got %v", check.Components)
	}
	if check.Components["consumer"] != "detached" {
		t.Errorf("Expected detached consumer, got %v", check.Components)
	}

	status, at := mc.GetLastHealthStatus()
	if status != HealthHealthy {
		t.Errorf("Expected stored healthy status, got %s", status)
	}
	if at.IsZero() {
		t.Error("Expected stored check timestamp")
	}
}

// TestHealthCheckDegradedNearLimit проверяет деградацию при заполнении буфера
func TestHealthCheckDegradedNearLimit(t *testing.T) {
	mc := newTestMetrics()
	c := New(WithLogger(NoOpLogger{}), WithMetrics(mc), WithBufferLimit(10))

	for i := 0; i < 8; i++ {
		c.Submit(EventCallReceived, map[string]any{AttrCallUUID: "u"})
	}

	check := mc.RunHealthCheck(c)
	if check.Status != HealthDegraded {
		t.Errorf("Expected degraded status at 80%% fill, got %s", check.Status)
	}
	if check.Components["buffer"] != "degraded" {
		t.Errorf("Expected degraded buffer, got %v", check.Components)
	}
}

// TestHealthCheckUnhealthyAtFullBuffer проверяет статус при переполнении
func TestHealthCheckUnhealthyAtFullBuffer(t *testing.T) {
	mc := newTestMetrics()
	c := New(WithLogger(NoOpLogger{}), WithMetrics(mc), WithBufferLimit(5))

	for i := 0; i < 6; i++ {
		c.Submit(EventCallReceived, map[string]any{AttrCallUUID: "u"})
	}

	check := mc.RunHealthCheck(c)
	if check.Status != HealthUnhealthy {
		t.Errorf("Expected unhealthy status at full buffer, got %s", check.Status)
	}
	if len(check.Errors) == 0 {
		t.Error("Expected error description for full buffer")
	}
}

// TestHealthCheckNilCoordinator проверяет устойчивость к nil координатору
func TestHealthCheckNilCoordinator(t *testing.T) {
	mc := newTestMetrics()

	check := mc.RunHealthCheck(nil)
	if check.Status != HealthUnhealthy {
		t.Errorf("Expected unhealthy status for nil coordinator, got %s", check.Status)
	}
}

// TestHealthCheckAttachedConsumer проверяет отображение потребителя
func TestHealthCheckAttachedConsumer(t *testing.T) {
	mc := newTestMetrics()
	c := New(WithLogger(NoOpLogger{}), WithMetrics(mc))
	c.AttachConsumer(ConsumerFunc(func(Event) {}))

	check := mc.RunHealthCheck(c)
	if check.Components["consumer"] != "attached" {
		t.Errorf("Expected attached consumer, got %v", check.Components)
	}
}
