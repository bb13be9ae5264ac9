package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_redemptions_total",
			Help: "Ticket redemption attempts by outcome",
		},
		[]string{"status"},
	)

	verificationResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_resolutions_total",
			Help: "Resolved verification requests by type and decision",
		},
		[]string{"type", "decision"},
	)

	listingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_transitions_total",
			Help: "Listing state transitions by target status",
		},
		[]string{"status"},
	)

	mintsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mints_recorded_total",
			Help: "Ticket mints recorded against tier inventory",
		},
	)
)

func TrackRedemption(status string) {
	redemptions.WithLabelValues(status).Inc()
}

func TrackVerificationResolution(requestType, decision string) {
	verificationResolutions.WithLabelValues(requestType, decision).Inc()
}

func TrackListingTransition(status string) {
	listingTransitions.WithLabelValues(status).Inc()
}

func TrackMintRecorded() {
	mintsRecorded.Inc()
}
