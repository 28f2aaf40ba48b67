// Package bridge - Примеры использования координатора событий
//
// Этот файл содержит детальные примеры основных сценариев пакета bridge.

package bridge

// Пример 1: Ранние события и позднее подключение потребителя
//
// Типичный сценарий холодного старта: нативная сторона показывает
// входящий вызов и отправляет события еще до того, как слой приложения
// успел подписаться. Координатор откладывает события и воспроизводит
// их при подключении.
//
//	func bootstrap() {
//		// Нативная сторона стартует первой
//		bridge.EnsureInitialized()
//		bridge.Submit(bridge.EventCallReceived, map[string]any{
//			bridge.AttrCallUUID: "b3b7...",
//			bridge.AttrHandle:   "+79161234567",
//		})
//		bridge.Submit(bridge.EventCallAnswered, map[string]any{
//			bridge.AttrCallUUID: "b3b7...",
//		})
//
//		// Слой приложения подключается позже. Оба события придут
//		// синхронно внутри AttachConsumer, в порядке поступления.
//		bridge.AttachConsumer(bridge.ConsumerFunc(func(ev bridge.Event) {
//			log.Printf("событие: %s", ev)
//		}))
//	}
//
// Пример 2: Отдельный координатор с ограниченным буфером
//
//	func newBoundedCoordinator() *bridge.Coordinator {
//		logger := bridge.NewDefaultLogger()
//		logger.SetLevel(bridge.LogLevelDebug)
//
//		return bridge.New(
//			bridge.WithLogger(logger.WithComponent("coordinator")),
//			bridge.WithBufferLimit(256),
//		)
//	}
//
// Пример 3: Диагностика накопленных событий без их потребления
//
//	func reportPending(c *bridge.Coordinator) {
//		pending := c.BufferedSnapshot()
//		log.Printf("ожидает доставки: %d событий", len(pending))
//		for _, ev := range pending {
//			log.Printf("  %s", ev)
//		}
//	}
//
// Пример 4: Перезапуск потребителя
//
// После DetachConsumer координатор возвращается в состояние NotReady
// и снова копит события. Следующий потребитель получит только то,
// что поступило после отключения предыдущего.
//
//	func restartConsumer(c *bridge.Coordinator, next bridge.Consumer) {
//		c.DetachConsumer()
//		// ... события за это время накапливаются ...
//		c.AttachConsumer(next)
//	}
