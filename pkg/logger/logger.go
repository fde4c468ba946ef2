package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"
)

type LogEntry struct {
	Timestamp     string      `json:"timestamp"`
	Level         string      `json:"level"`
	Service       string      `json:"service"`
	Action        string      `json:"action"`
	Message       string      `json:"message"`
	Hostname      string      `json:"hostname"`
	CorrelationID string      `json:"correlation_id"`
	Error         *ErrorEntry `json:"error,omitempty"`
}

type ErrorEntry struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

type Logger struct {
	service  string
	hostname string
}

func NewLogger(service string) *Logger {
	hostname, _ := os.Hostname()
	return &Logger{
		service:  service,
		hostname: hostname,
	}
}

func (l *Logger) Debug(correlationID, action, message string) {
	l.log("DEBUG", correlationID, action, message, nil)
}

func (l *Logger) Info(correlationID, action, message string) {
	l.log("INFO", correlationID, action, message, nil)
}

func (l *Logger) Warn(correlationID, action, message string) {
	l.log("WARN", correlationID, action, message, nil)
}

func (l *Logger) Error(correlationID, action, message string, err error) {
	var errorEntry *ErrorEntry
	if err != nil {
		buf := make([]byte, 1024)
		n := runtime.Stack(buf, false)
		errorEntry = &ErrorEntry{
			Msg:   err.Error(),
			Stack: string(buf[:n]),
		}
	}
	l.log("ERROR", correlationID, action, message, errorEntry)
}

func (l *Logger) log(level, correlationID, action, message string, errorEntry *ErrorEntry) {
	entry := LogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Level:         level,
		Service:       l.service,
		Action:        action,
		Message:       message,
		Hostname:      l.hostname,
		CorrelationID: correlationID,
		Error:         errorEntry,
	}

	jsonData, _ := json.Marshal(entry)
	fmt.Println(string(jsonData))
}
