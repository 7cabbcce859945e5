package metrics

import (
	"github.com/cuemby/ipsecd/pkg/types"
)

// Sink exports published statistics as gauges
type Sink struct{}

// NewSink creates a gauge sink
func NewSink() *Sink {
	return &Sink{}
}

// Publish updates the gauges of the sampled object
func (s *Sink) Publish(snap *types.StatSnapshot) {
	if snap == nil {
		return
	}

	switch snap.Kind {
	case types.StatSA:
		if snap.SA == nil {
			return
		}
		spi := types.FormatSPI(snap.SA.SPI)
		SABytes.WithLabelValues(spi).Set(float64(snap.SA.Stats.Bytes))
		SAPackets.WithLabelValues(spi).Set(float64(snap.SA.Stats.Packets))
	case types.StatSP:
		if snap.SP == nil {
			return
		}
		SPTemplates.WithLabelValues(snap.SP.ID.String()).Set(float64(len(snap.SP.Templates)))
	case types.StatIKE:
		if snap.IKE == nil {
			return
		}
		established := 0.0
		if snap.IKE.State == types.IKEStateEstablished {
			established = 1
		}
		IKEConnectionState.WithLabelValues(snap.IKE.Name).Set(established)
		IKEChildBytes.WithLabelValues(snap.IKE.Name, "in").Set(float64(snap.IKE.BytesIn))
		IKEChildBytes.WithLabelValues(snap.IKE.Name, "out").Set(float64(snap.IKE.BytesOut))
	}
}

// RecordError counts an error reported by the IKE daemon
func RecordError(err *types.IPsecError) {
	if err == nil {
		return
	}
	IKEErrorsTotal.WithLabelValues(string(err.Event)).Inc()
}
