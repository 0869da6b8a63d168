package trackers

import (
	"github.com/samuelfneumann/worldmodel/experiment/tracker"
	"github.com/samuelfneumann/worldmodel/trainer"
)

// LossType determines which loss of a training step a Loss tracks
type LossType string

const (
	Total LossType = "Total"
	Recon LossType = "Recon"
	KL    LossType = "KL"
)

// Loss tracks and saves one of the losses of every training step in
// an experiment
type Loss struct {
	lossType LossType
	losses   []float64
	filename string
}

// NewLoss returns a new Loss tracker which tracks losses of type t
// and saves them at filename
func NewLoss(t LossType, filename string) *Loss {
	return &Loss{lossType: t, filename: filename}
}

// TrackResult caches the tracked loss of a training step
func (l *Loss) TrackResult(r trainer.Result) {
	var loss float64
	switch l.lossType {
	case Recon:
		loss = r.Recon
	case KL:
		loss = r.KL
	default:
		loss = r.Loss
	}
	l.losses = append(l.losses, loss)
}

// Data returns the tracked losses
func (l *Loss) Data() []float64 {
	return l.losses
}

// Save saves the tracked losses to disk
func (l *Loss) Save() {
	tracker.Save(l.filename, l.losses)
}
