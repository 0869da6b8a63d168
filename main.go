package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/samuelfneumann/worldmodel/environment/envconfig"
	"github.com/samuelfneumann/worldmodel/experiment"
	"github.com/samuelfneumann/worldmodel/experiment/checkpointer"
	"github.com/samuelfneumann/worldmodel/experiment/tracker"
	"github.com/samuelfneumann/worldmodel/experiment/trackers"
	"github.com/samuelfneumann/worldmodel/utils/progressbar"
)

// logEvery is the number of windows between logged losses
const logEvery = 100

func main() {
	var seed uint64 = 192382

	// Load the experiment configuration if one is given
	config, err := experiment.DefaultConfig(envconfig.GridWorld)
	if err != nil {
		log.Fatal(err)
	}
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			log.Fatalf("could not read config: %v", err)
		}
		if err := json.Unmarshal(data, &config); err != nil {
			log.Fatalf("could not parse config: %v", err)
		}
	}

	// Create the experiment, tracking the episodes of the first
	// environment and every loss
	exp, err := config.CreateExp(
		seed,
		[]tracker.Tracker{
			trackers.NewReturn("returns.bin"),
			trackers.NewEpisodeLength("lengths.bin"),
		},
		[]tracker.ResultTracker{
			trackers.NewLoss(trackers.Total, "loss.bin"),
			trackers.NewLoss(trackers.Recon, "recon.bin"),
			trackers.NewLoss(trackers.KL, "kl.bin"),
		},
		nil,
	)
	if err != nil {
		log.Fatal(err)
	}
	defer exp.Close()
	checkpoints, err := checkpointer.NewNStep(
		10*logEvery,
		exp.Trainer(),
		checkpointer.Numbered("checkpoints", "weights", ".bin"),
	)
	if err != nil {
		log.Fatal(err)
	}
	exp.RegisterCheckpointer(checkpoints)

	// Train the world model
	bar := progressbar.NewManualProgressBar(50, config.Windows)
	for !exp.Done() {
		result, _, err := exp.RunWindow()
		if err != nil {
			log.Fatal(err)
		}
		bar.Increment()
		bar.Display()

		if exp.Windows()%logEvery == 0 {
			fmt.Println()
			log.Printf("window %v: loss = %.4f (recon = %.4f, kl = %.4f)",
				exp.Windows(), result.Loss, result.Recon, result.KL)
		}
	}
	fmt.Println()

	exp.Save()
}
