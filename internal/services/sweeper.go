// internal/services/sweeper.go
package services

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iagallery/iag-backend/internal/config"
)

// Sweeper is the background maintenance loop: it expires overdue payment
// orders and deletes audit entries past their retention deadline.
type Sweeper struct {
	payments *PaymentService
	audit    *AuditService
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(payments *PaymentService, audit *AuditService, cfg *config.Config) *Sweeper {
	return &Sweeper{
		payments: payments,
		audit:    audit,
		interval: time.Duration(cfg.Sweep.IntervalSeconds) * time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *Sweeper) sweep(now time.Time) {
	expired, err := s.payments.ExpireOrders(now)
	if err != nil {
		logrus.WithError(err).Error("Failed to expire payment orders")
	} else if expired > 0 {
		logrus.WithField("count", expired).Info("Expired overdue payment orders")
	}

	deleted, err := s.audit.SweepExpired(now)
	if err != nil {
		logrus.WithError(err).Error("Failed to sweep expired audit logs")
	} else if deleted > 0 {
		logrus.WithField("count", deleted).Info("Deleted expired audit logs")
	}
}
