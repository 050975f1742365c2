// Package notification delivers crossover alerts to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"quant-dashboard/internal/model"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one notification. Signal fields are empty for operational alerts.
type Alert struct {
	Level     AlertLevel      `json:"level"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Symbol    string          `json:"symbol,omitempty"`
	Time      string          `json:"time,omitempty"`
	Direction model.Direction `json:"direction,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Close     float64         `json:"close,omitempty"`
}

// SignalAlert describes a marker on symbol's bar closing at price.
func SignalAlert(symbol string, m model.SignalMarker, price float64) Alert {
	verb := "Buy"
	if m.Direction == model.Sell {
		verb = "Sell"
	}
	return Alert{
		Level:     AlertInfo,
		Title:     fmt.Sprintf("%s %s signal", symbol, verb),
		Message:   fmt.Sprintf("%s on %s at close %.2f", m.Reason, m.Time, price),
		Symbol:    symbol,
		Time:      m.Time,
		Direction: m.Direction,
		Reason:    m.Reason,
		Close:     price,
	}
}

// Notifier delivers alerts.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
