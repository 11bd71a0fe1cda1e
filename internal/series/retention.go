package series

import (
	"log"
	"sync"
	"time"
)

// Pruner is the store operation the retention cleaner drives.
type Pruner interface {
	Prune(today time.Time) (int, error)
}

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	Interval time.Duration
	Now      func() time.Time
}

// RetentionCleaner periodically drops records that left the rolling window,
// so the store shrinks even when no new log text is merged.
type RetentionCleaner struct {
	store    Pruner
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRetentionCleaner starts a cleaner that prunes once immediately and then
// on every interval tick. Returns nil when the interval is 0 (disabled).
func NewRetentionCleaner(store Pruner, conf RetentionConfig) *RetentionCleaner {
	if conf.Interval <= 0 {
		return nil
	}
	now := conf.Now
	if now == nil {
		now = time.Now
	}

	rc := &RetentionCleaner{
		store:    store,
		interval: conf.Interval,
		now:      now,
		done:     make(chan struct{}),
	}

	// Startup cleanup to catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()

	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	today := rc.now()
	removed, err := rc.store.Prune(today)
	if err != nil {
		log.Printf("series: retention cleanup error: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("series: retention cleanup removed %d records (before %s)",
			removed, Cutoff(today).Format("2006-01-02"))
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
