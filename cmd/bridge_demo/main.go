// Демонстрация моста событий звонков.
//
// Запускает SIP шлюз поверх провайдера звонков и показывает работу
// координатора: события, пришедшие до подключения потребителя,
// накапливаются и воспроизводятся в исходном порядке при подключении.
//
// Режимы:
//
//	go run cmd/bridge_demo/main.go -demo
//	go run cmd/bridge_demo/main.go -listen 127.0.0.1:5060 -attach-delay 5s
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/arzzra/call_bridge/pkg/bridge"
	"github.com/arzzra/call_bridge/pkg/provider"
	"github.com/arzzra/call_bridge/pkg/sip_gateway"
)

func main() {
	var (
		listenAddr  = flag.String("listen", "127.0.0.1:5060", "Адрес SIP шлюза")
		transport   = flag.String("transport", "udp", "Транспорт SIP: udp или tcp")
		configPath  = flag.String("config", "", "Путь к YAML конфигурации провайдера")
		appName     = flag.String("app", "CallBridge Demo", "Имя приложения")
		bufferLimit = flag.Int("buffer-limit", 0, "Предел буфера отложенных событий, 0 = без предела")
		attachDelay = flag.Duration("attach-delay", 2*time.Second, "Задержка подключения потребителя")
		demo        = flag.Bool("demo", false, "Прогнать сценарий звонка без SIP")
		debug       = flag.Bool("debug", false, "Подробное логирование")
	)
	flag.Parse()

	logger := bridge.GetDefaultLogger()
	if *debug {
		logger.SetLevel(bridge.LogLevelDebug)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Конфигурация провайдера
	cfg, err := loadProviderConfig(*configPath, *appName)
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	// Координатор с выделенным сборщиком метрик
	coordinator := bridge.New(
		bridge.WithBufferLimit(*bufferLimit),
	)
	coordinator.Metrics().StartPeriodicHealthChecks(ctx, coordinator, 30*time.Second)

	callProvider, err := provider.NewCallProvider(cfg, coordinator)
	if err != nil {
		log.Fatalf("Ошибка создания провайдера: %v", err)
	}
	defer callProvider.Close()

	log.Printf("Провайдер создан: %s (до %d одновременных вызовов)",
		cfg.AppName, cfg.MaxActiveCalls())

	if *demo {
		runDemoScenario(callProvider)
	} else {
		gateway, err := sip_gateway.New(&sip_gateway.Config{
			ListenAddr: *listenAddr,
			Transport:  *transport,
			UserAgent:  cfg.AppName + "/1.0",
		}, callProvider)
		if err != nil {
			log.Fatalf("Ошибка создания SIP шлюза: %v", err)
		}

		err = bridge.SafeExecuteWithRetry(ctx, "sip-gateway-start", func() error {
			return gateway.Start(ctx)
		}, 3, time.Second, logger)
		if err != nil {
			log.Fatalf("Ошибка запуска SIP шлюза: %v", err)
		}
		defer gateway.Shutdown(ctx)

		log.Printf("SIP шлюз слушает %s/%s", *transport, *listenAddr)
	}

	// Потребитель подключается с задержкой: события, пришедшие раньше,
	// будут воспроизведены из буфера в исходном порядке
	log.Printf("Потребитель подключится через %s, события пока буферизуются", *attachDelay)

	attachTimer := time.AfterFunc(*attachDelay, func() {
		buffered := coordinator.BufferedCount()
		coordinator.AttachConsumer(bridge.ConsumerFunc(printEvent))
		log.Printf("Потребитель подключен, воспроизведено %d отложенных событий", buffered)
	})
	defer attachTimer.Stop()

	// Ждем сигнал завершения
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if *demo {
		// В демо режиме даем сценарию отработать и завершаемся сами
		select {
		case <-sig:
		case <-time.After(*attachDelay + 2*time.Second):
		}
	} else {
		<-sig
	}

	log.Printf("Завершение работы...")
	cancel()

	printCounters(coordinator.Metrics())
}

// loadProviderConfig читает конфигурацию из файла или собирает умолчания.
func loadProviderConfig(path, appName string) (*provider.Config, error) {
	if path != "" {
		log.Printf("Чтение конфигурации провайдера из %s", path)
		return provider.LoadConfig(path)
	}

	cfg := provider.DefaultConfig(appName)
	cfg.MaximumCallGroups = 2
	cfg.MaximumCallsPerCallGroup = 2
	cfg.SupportsVideo = true
	return cfg, cfg.Validate()
}

// runDemoScenario прогоняет жизненный цикл звонка без SIP стека.
// Первые события уходят в буфер, потребитель еще не подключен.
func runDemoScenario(p *provider.CallProvider) {
	log.Printf("Демо сценарий: входящий звонок до подключения потребителя")

	uuid, err := p.ReportIncomingCall("", "alice@example.com", "Alice", true)
	if err != nil {
		log.Fatalf("Ошибка регистрации вызова: %v", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"ответ", func() error { return p.ReportCallAnswered(uuid) }},
		{"активация аудио", func() error { return p.ReportAudioSessionActivated() }},
		{"смена маршрута", func() error { return p.ReportAudioRouteChanged("Speaker", "override") }},
		{"mute", func() error { return p.ReportCallMuted(uuid, true) }},
		{"unmute", func() error { return p.ReportCallMuted(uuid, false) }},
		{"удержание", func() error { return p.ReportCallHeld(uuid, true) }},
		{"снятие с удержания", func() error { return p.ReportCallHeld(uuid, false) }},
		{"DTMF", func() error { return p.ReportDTMF(uuid, "1234#") }},
		{"завершение", func() error { return p.ReportCallEnded(uuid, provider.EndReasonRemoteEnded) }},
		{"деактивация аудио", func() error { return p.ReportAudioSessionDeactivated() }},
	}

	go func() {
		for _, step := range steps {
			time.Sleep(300 * time.Millisecond)
			if err := step.run(); err != nil {
				log.Printf("Шаг %q: %v", step.name, err)
			}
		}
	}()
}

// printEvent печатает доставленное событие.
func printEvent(event bridge.Event) {
	log.Printf("СОБЫТИЕ %s", event.String())
}

// printCounters печатает счетчики координатора при завершении.
func printCounters(metrics *bridge.MetricsCollector) {
	counters := metrics.GetPerformanceCounters()
	if len(counters) == 0 {
		return
	}

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	log.Printf("Счетчики координатора:")
	for _, name := range names {
		log.Printf("  %s = %d", name, counters[name])
	}
}
