// Package tracker defines Trackers, which track and save data in an
// experiment
package tracker

import (
	"encoding/gob"
	"log"
	"os"

	ts "github.com/samuelfneumann/worldmodel/timestep"
	"github.com/samuelfneumann/worldmodel/trainer"
)

// Interface Tracker keeps track of environment data in an experiment
// and saves the data after the experiment has finished
type Tracker interface {
	Track(t ts.TimeStep)
	Save()
}

// ResultTracker keeps track of the losses of the training steps of an
// experiment and saves them after the experiment has finished
type ResultTracker interface {
	TrackResult(r trainer.Result)
	Save()
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) []float64 {
	// Open file
	file, err := os.Open(filename)
	if err != nil {
		log.Fatalf("could not open data file: %v", err)
	}
	defer file.Close()

	// Create the decoder and the variable to store the data in
	dec := gob.NewDecoder(file)
	var data []float64

	// Decode the data
	err = dec.Decode(&data)
	if err != nil {
		log.Fatalf("could not decode data: %v", err)
	}

	return data
}

// Save encodes data to filename so that it can be loaded with LoadData
func Save(filename string, data []float64) {
	file, err := os.Create(filename)
	if err != nil {
		log.Fatalf("could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err = en.Encode(data); err != nil {
		log.Fatalf("could not encode data: %v", err)
	}
}
