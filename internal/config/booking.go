package config

import (
	"fmt"
	"time"
)

// BookingConfig tunes sessions, the lease sweeper and the live seat feed.
type BookingConfig struct {
	SessionTTL      time.Duration // how long a PENDING session lives
	MaxSeats        int           // seats per session
	AuditTimeout    time.Duration // per audit publish
	SweepInterval   time.Duration
	SweepBatchSize  int
	NotifyKeepAlive time.Duration
	NotifyBuffer    int // events buffered per viewer
}

// LoadBookingConfig reads BOOKING_*, SWEEP_* and NOTIFY_* variables.
func LoadBookingConfig() BookingConfig {
	return BookingConfig{
		SessionTTL:      envDur("BOOKING_SESSION_TTL", 5*time.Minute),
		MaxSeats:        envInt("BOOKING_MAX_SEATS", 4),
		AuditTimeout:    envDur("BOOKING_AUDIT_TIMEOUT", 5*time.Second),
		SweepInterval:   envDur("SWEEP_INTERVAL", 60*time.Second),
		SweepBatchSize:  envInt("SWEEP_BATCH_SIZE", 100),
		NotifyKeepAlive: envDur("NOTIFY_KEEPALIVE", 45*time.Second),
		NotifyBuffer:    envInt("NOTIFY_BUFFER", 64),
	}
}

// Validate rejects values the booking core cannot run with.
func (b BookingConfig) Validate() error {
	switch {
	case b.SessionTTL <= 0:
		return fmt.Errorf("%w: BOOKING_SESSION_TTL must be positive", ErrInvalidBooking)
	case b.MaxSeats < 1:
		return fmt.Errorf("%w: BOOKING_MAX_SEATS must be at least 1", ErrInvalidBooking)
	case b.SweepInterval <= 0:
		return fmt.Errorf("%w: SWEEP_INTERVAL must be positive", ErrInvalidBooking)
	case b.SweepBatchSize < 1:
		return fmt.Errorf("%w: SWEEP_BATCH_SIZE must be at least 1", ErrInvalidBooking)
	case b.NotifyKeepAlive <= 0:
		return fmt.Errorf("%w: NOTIFY_KEEPALIVE must be positive", ErrInvalidBooking)
	case b.NotifyBuffer < 1:
		return fmt.Errorf("%w: NOTIFY_BUFFER must be at least 1", ErrInvalidBooking)
	}
	return nil
}
