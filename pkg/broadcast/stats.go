package broadcast

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message kinds used as metric labels.
const (
	KindDelta          = "delta"
	KindFullSync       = "full_sync"
	KindReconciliation = "reconciliation"
	KindSpecific       = "specific"
)

// BandwidthStats counts what the broadcaster puts on the wire. Counters are
// process wide and lock free. When a registerer is given they are also
// exported as Prometheus metrics.
type BandwidthStats struct {
	messagesSent        atomic.Uint64
	bytesSent           atomic.Uint64
	deltaMessages       atomic.Uint64
	fullSyncMessages    atomic.Uint64
	reconciliations     atomic.Uint64
	specificUpdates     atomic.Uint64
	compressedMessages  atomic.Uint64
	compressionSaved    atomic.Uint64
	sendFailures        atomic.Uint64
	noOpBroadcasts      atomic.Uint64
	skippedEmptyDeltas  atomic.Uint64
	reconciliationFulls atomic.Uint64

	messagesTotal     *prometheus.CounterVec
	bytesTotal        *prometheus.CounterVec
	compressionSavedC prometheus.Counter
	sendFailuresC     prometheus.Counter
	noOpBroadcastsC   prometheus.Counter
}

// NewBandwidthStats creates the counters. reg may be nil.
func NewBandwidthStats(reg prometheus.Registerer) *BandwidthStats {
	s := &BandwidthStats{}
	if reg == nil {
		return s
	}
	factory := promauto.With(reg)
	s.messagesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "hokm_sync_messages_total",
		Help: "Total sync messages sent by kind",
	}, []string{"kind"})
	s.bytesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "hokm_sync_bytes_total",
		Help: "Total sync bytes sent by kind",
	}, []string{"kind"})
	s.compressionSavedC = factory.NewCounter(prometheus.CounterOpts{
		Name: "hokm_sync_compression_saved_bytes_total",
		Help: "Bytes saved by payload compression",
	})
	s.sendFailuresC = factory.NewCounter(prometheus.CounterOpts{
		Name: "hokm_sync_send_failures_total",
		Help: "Sends that failed and tore down a channel",
	})
	s.noOpBroadcastsC = factory.NewCounter(prometheus.CounterOpts{
		Name: "hokm_sync_noop_broadcasts_total",
		Help: "Broadcasts skipped because nothing changed",
	})
	return s
}

// recordSent accounts one message of kind. rawSize and wireSize describe the
// compressed payload when compressed is set.
func (s *BandwidthStats) recordSent(kind string, bytes int, compressed bool, rawSize, wireSize int) {
	s.messagesSent.Add(1)
	s.bytesSent.Add(uint64(bytes))
	switch kind {
	case KindDelta:
		s.deltaMessages.Add(1)
	case KindFullSync:
		s.fullSyncMessages.Add(1)
	case KindReconciliation:
		s.reconciliations.Add(1)
	case KindSpecific:
		s.specificUpdates.Add(1)
	}
	var saved int
	if compressed {
		s.compressedMessages.Add(1)
		if rawSize > wireSize {
			saved = rawSize - wireSize
			s.compressionSaved.Add(uint64(saved))
		}
	}

	if s.messagesTotal != nil {
		s.messagesTotal.WithLabelValues(kind).Inc()
		s.bytesTotal.WithLabelValues(kind).Add(float64(bytes))
		if saved > 0 {
			s.compressionSavedC.Add(float64(saved))
		}
	}
}

func (s *BandwidthStats) recordFailure() {
	s.sendFailures.Add(1)
	if s.sendFailuresC != nil {
		s.sendFailuresC.Inc()
	}
}

func (s *BandwidthStats) recordNoOp() {
	s.noOpBroadcasts.Add(1)
	if s.noOpBroadcastsC != nil {
		s.noOpBroadcastsC.Inc()
	}
}

func (s *BandwidthStats) recordSkippedEmpty() {
	s.skippedEmptyDeltas.Add(1)
}

func (s *BandwidthStats) recordReconciliationFullSync() {
	s.reconciliationFulls.Add(1)
}

// BandwidthSnapshot is a point in time copy of the counters.
type BandwidthSnapshot struct {
	MessagesSent            uint64  `json:"messages_sent"`
	BytesSent               uint64  `json:"bytes_sent"`
	DeltaMessages           uint64  `json:"delta_messages"`
	FullSyncMessages        uint64  `json:"full_sync_messages"`
	ReconciliationMessages  uint64  `json:"reconciliation_messages"`
	ReconciliationFullSyncs uint64  `json:"reconciliation_full_syncs"`
	SpecificUpdates         uint64  `json:"specific_updates"`
	CompressedMessages      uint64  `json:"compressed_messages"`
	CompressionSavedBytes   uint64  `json:"compression_saved_bytes"`
	SendFailures            uint64  `json:"send_failures"`
	NoOpBroadcasts          uint64  `json:"noop_broadcasts"`
	SkippedEmptyDeltas      uint64  `json:"skipped_empty_deltas"`
	AverageMessageBytes     float64 `json:"average_message_bytes"`
	ActiveRooms             int     `json:"active_rooms"`
}

// Snapshot returns the current counter values.
func (s *BandwidthStats) Snapshot() BandwidthSnapshot {
	out := BandwidthSnapshot{
		MessagesSent:            s.messagesSent.Load(),
		BytesSent:               s.bytesSent.Load(),
		DeltaMessages:           s.deltaMessages.Load(),
		FullSyncMessages:        s.fullSyncMessages.Load(),
		ReconciliationMessages:  s.reconciliations.Load(),
		ReconciliationFullSyncs: s.reconciliationFulls.Load(),
		SpecificUpdates:         s.specificUpdates.Load(),
		CompressedMessages:      s.compressedMessages.Load(),
		CompressionSavedBytes:   s.compressionSaved.Load(),
		SendFailures:            s.sendFailures.Load(),
		NoOpBroadcasts:          s.noOpBroadcasts.Load(),
		SkippedEmptyDeltas:      s.skippedEmptyDeltas.Load(),
	}
	if out.MessagesSent > 0 {
		out.AverageMessageBytes = float64(out.BytesSent) / float64(out.MessagesSent)
	}
	return out
}
