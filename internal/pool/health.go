package pool

import (
	"context"
	"log"
	"time"
)

// maintenanceLoop runs for the lifetime of the pool, ticking every
// HealthCheckInterval to probe idle connections, reap ones that fail or have
// exceeded their lifetime/idle/usage limits, and refill back up to MinSize.
func (p *Pool) maintenanceLoop() {
	defer p.healthWG.Done()

	ticker := time.NewTicker(p.target.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.runMaintenance()
		}
	}
}

// runMaintenance takes a snapshot of the idle connections, probes each with
// Ping outside the pool lock, retires the ones that fail or have aged out,
// and tops the pool back up to MinSize. It never holds the lock across a
// network call.
func (p *Pool) runMaintenance() {
	candidates := p.claimIdleForCheck()

	for _, pc := range candidates {
		p.mu.Lock()
		reason := p.retirementReasonLocked(pc)
		p.mu.Unlock()

		if reason == "" {
			probeCtx, cancel := context.WithTimeout(context.Background(), p.target.ConnectionTimeout)
			err := pc.session.Ping(probeCtx)
			cancel()
			if err != nil {
				reason = "probe_failed"
				pc.markUnhealthy()
				log.Printf("[pool] %s: %v: connection %d: %v", p.name, errProbeFailed, pc.id, err)
			}
		}

		p.mu.Lock()
		if reason == "" {
			p.stats.recordHealthCheck("ok")
			p.offerToWaiterOrIdleLocked(pc)
			p.syncGaugesLocked()
			p.mu.Unlock()
			continue
		}

		p.stats.recordHealthCheck(reason)
		if reason == "probe_failed" {
			p.stats.recordUnhealthyDetected()
		}
		p.retireLocked(pc)
		p.syncGaugesLocked()
		p.mu.Unlock()

		if err := pc.close(); err != nil {
			log.Printf("[pool] %s: error closing retired connection %d: %v", p.name, pc.id, err)
		}
	}

	p.refillAsync()
}

// claimIdleForCheck locks the pool, removes every currently idle connection
// from the idle slice, and marks it "checking" so Acquire cannot hand it out
// mid-probe: a health check must never race an acquirer for the same
// connection.
func (p *Pool) claimIdleForCheck() []*pooledConnection {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.idle) == 0 {
		return nil
	}

	claimed := make([]*pooledConnection, len(p.idle))
	copy(claimed, p.idle)
	p.idle = p.idle[:0]

	for _, pc := range claimed {
		pc.markChecking()
	}
	p.syncGaugesLocked()
	return claimed
}
