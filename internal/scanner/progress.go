package scanner

import (
	"sync"

	"github.com/ternarybob/consentry/internal/interfaces"
	"github.com/ternarybob/consentry/internal/models"
)

// progressUpdate is one queued sink delivery.
type progressUpdate struct {
	progress *models.ScanProgress
	metrics  *models.EnterpriseMetrics
}

// progressPublisher delivers updates to a ProgressSink on a dedicated
// goroutine. When the sink cannot keep up, updates are dropped rather than
// blocking the scan.
type progressPublisher struct {
	sink    interfaces.ProgressSink
	updates chan progressUpdate
	done    chan struct{}
	once    sync.Once
}

func newProgressPublisher(sink interfaces.ProgressSink) *progressPublisher {
	p := &progressPublisher{
		sink:    sink,
		updates: make(chan progressUpdate, 16),
		done:    make(chan struct{}),
	}
	if sink != nil {
		go p.deliver()
	}
	return p
}

func (p *progressPublisher) deliver() {
	defer close(p.done)
	for update := range p.updates {
		if update.progress != nil {
			p.sink.OnProgress(*update.progress)
		}
		if update.metrics != nil {
			p.sink.OnMetrics(*update.metrics)
		}
	}
}

// PublishProgress queues a progress record; drops it if the queue is full.
func (p *progressPublisher) PublishProgress(progress models.ScanProgress) {
	if p.sink == nil {
		return
	}
	select {
	case p.updates <- progressUpdate{progress: &progress}:
	default:
	}
}

// PublishMetrics queues an enterprise metrics record; drops it if the
// queue is full.
func (p *progressPublisher) PublishMetrics(metrics models.EnterpriseMetrics) {
	if p.sink == nil {
		return
	}
	select {
	case p.updates <- progressUpdate{metrics: &metrics}:
	default:
	}
}

// Close stops delivery after draining queued updates.
func (p *progressPublisher) Close() {
	p.once.Do(func() {
		close(p.updates)
		if p.sink != nil {
			<-p.done
		}
	})
}
