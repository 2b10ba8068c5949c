package topics

const (
	// Eventos de domínio de apostas/liquidação (Kafka)
	BettingEvents = "betting_events"

	// Canal Redis Pub/Sub consumido pelo notificador em tempo real (WebSocket)
	BettingBroadcast = "betting_events_broadcast"

	// Comandos administrativos de round (entrega at-least-once) e sua DLQ
	RoundCommands    = "round_commands"
	RoundCommandsDLQ = "round_commands_dlq"
)
