package logger

import (
	"backtestd/internal/eventbus"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// AuditLogger subscribes to the EventBus's trade, run-status and
// checkpoint events and logs them to the console; only LogToDB writes to
// the database.
type AuditLogger struct {
	db       *gorm.DB
	eventBus *eventbus.EventBus
	debug    bool
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(db *gorm.DB, eb *eventbus.EventBus) *AuditLogger {
	return &AuditLogger{
		db:       db,
		eventBus: eb,
		debug:    true, // Set to false in production
	}
}

// Start subscribes to all event types and begins logging
func (al *AuditLogger) Start() {
	if al.eventBus == nil {
		log.Println("[AUDIT][WARN] EventBus not available, audit logging disabled")
		return
	}

	al.eventBus.Subscribe(eventbus.EventTypeTradeExecuted, al.handleTradeEvent)
	al.eventBus.Subscribe(eventbus.EventTypeRunStatusChanged, al.handleRunStatusEvent)
	al.eventBus.Subscribe(eventbus.EventTypeCheckpointPersisted, al.handleCheckpointEvent)

	log.Println("[AUDIT] audit logger started, subscribed to events")
}

// handleTradeEvent logs trade events
func (al *AuditLogger) handleTradeEvent(data []byte) {
	var event eventbus.TradeExecutedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("[AUDIT][ERROR] Failed to unmarshal trade event: %v", err)
		return
	}

	log.Printf("[AUDIT][TRADE] Run=%s Coin=%s Side=%s Qty=%.6f Price=%.4f Fee=%.4f",
		event.Data.RunID,
		event.Data.CoinID,
		event.Data.Side,
		event.Data.Quantity,
		event.Data.Price,
		event.Data.Fee,
	)
}

// handleRunStatusEvent logs run lifecycle transitions
func (al *AuditLogger) handleRunStatusEvent(data []byte) {
	var event eventbus.RunStatusChangedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("[AUDIT][ERROR] Failed to unmarshal run status event: %v", err)
		return
	}

	log.Printf("[AUDIT][RUN] Run=%s Status=%s Reason=%s",
		event.Data.RunID,
		event.Data.Status,
		event.Data.Reason,
	)
}

// handleCheckpointEvent logs checkpoint persistence
func (al *AuditLogger) handleCheckpointEvent(data []byte) {
	var event eventbus.CheckpointPersistedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("[AUDIT][ERROR] Failed to unmarshal checkpoint event: %v", err)
		return
	}

	log.Printf("[AUDIT][CHECKPOINT] Run=%s Index=%d PortfolioValue=%.2f",
		event.Data.RunID,
		event.Data.LastIndex,
		event.Data.PortfolioValue,
	)
}

// LogInfo logs informational messages with service context
func (al *AuditLogger) LogInfo(service, message string) {
	log.Printf("[%s][INFO] %s", service, message)
}

// LogError logs errors with service context
func (al *AuditLogger) LogError(service, message string, err error) {
	if err != nil {
		log.Printf("[%s][ERROR] %s: %v", service, message, err)
	} else {
		log.Printf("[%s][ERROR] %s", service, message)
	}
}

// LogWarn logs warnings with service context
func (al *AuditLogger) LogWarn(service, message string) {
	log.Printf("[%s][WARN] %s", service, message)
}

// LogDebug logs debug messages with service context (only in debug mode)
func (al *AuditLogger) LogDebug(service, message string) {
	if al.debug {
		log.Printf("[%s][DEBUG] %s", service, message)
	}
}

// SystemLog represents a log entry in the database
type SystemLog struct {
	ID        uint      `gorm:"primaryKey"`
	Service   string    `gorm:"size:50;index"`
	Level     string    `gorm:"size:20;index"` // INFO, WARN, ERROR, DEBUG
	Message   string    `gorm:"type:text"`
	EventType string    `gorm:"size:50"`
	EventData string    `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName specifies the table name for SystemLog
func (SystemLog) TableName() string {
	return "system_logs"
}

// LogToDB logs an entry to the database
func (al *AuditLogger) LogToDB(service, level, message, eventType string, eventData map[string]interface{}) error {
	if al.db == nil {
		return fmt.Errorf("database not available")
	}

	eventJSON := ""
	if eventData != nil {
		bytes, _ := json.Marshal(eventData)
		eventJSON = string(bytes)
	}

	logEntry := SystemLog{
		Service:   service,
		Level:     level,
		Message:   message,
		EventType: eventType,
		EventData: eventJSON,
		CreatedAt: time.Now(),
	}

	return al.db.Create(&logEntry).Error
}
