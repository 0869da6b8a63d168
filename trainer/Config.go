// Package trainer trains an RSSM world model to reconstruct sequences
// of categorical observations. Observations are embedded by a dense or
// convolutional encoder, filtered by an RSSM core, and reconstructed from the belief
// states by a dense decoder. The loss is the reconstruction
// cross-entropy plus a weighted KL divergence between the posterior
// and prior of the core.
package trainer

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/initwfn"
	"github.com/samuelfneumann/worldmodel/network"
	"github.com/samuelfneumann/worldmodel/rssm"
	"github.com/samuelfneumann/worldmodel/solver"
)

// Config describes a Trainer
type Config struct {
	Core    rssm.Config
	Encoder network.DenseEncoderConfig
	Decoder network.DenseDecoderConfig

	// If not nil, observations are embedded by a convolutional encoder
	// over (C, H, W) maps instead of the dense encoder
	ConvEncoder *network.ConvEncoderConfig `json:",omitempty"`

	// Weight initializer of the encoder and decoder. If nil, Glorot
	// uniform initialization is used.
	InitWFn *initwfn.InitWFn
	Solver  *solver.Solver

	KLWeight float64

	// Number of steps and sequences in each training window
	SeqLen int
	Batch  int
}

// DefaultConfig returns the default configuration of a Trainer on
// observations of shape (C, H, W) and actions of size actionDim
func DefaultConfig(obsShape []int, actionDim int) (Config, error) {
	if len(obsShape) != 3 {
		return Config{}, fmt.Errorf("defaultConfig: observation shape "+
			"must be (C, H, W), have %v", obsShape)
	}

	core := rssm.DefaultConfig()
	core.ActionDim = actionDim
	core.Variant = rssm.Trajectory

	encoder := network.DefaultDenseEncoderConfig(obsShape[0] * obsShape[1] *
		obsShape[2])
	encoder.OutDim = core.EmbedDim

	decoder := network.DefaultDenseDecoderConfig(core.StateDim())
	decoder.OutShape = append([]int(nil), obsShape...)

	s, err := solver.NewDefaultAdam(3e-4, 1)
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %v", err)
	}

	return Config{
		Core:     core,
		Encoder:  encoder,
		Decoder:  decoder,
		Solver:   s,
		KLWeight: 1.0,
		SeqLen:   50,
		Batch:    16,
	}, nil
}

// Validate returns an error if the components of the configuration do
// not fit together
func (c Config) Validate() error {
	if err := c.Core.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Decoder.InDim != c.Core.StateDim() {
		return fmt.Errorf("validate: decoder input size %v must match "+
			"state size %v", c.Decoder.InDim, c.Core.StateDim())
	}
	if len(c.Decoder.OutShape) != 3 {
		return fmt.Errorf("validate: decoder output shape must be "+
			"(C, H, W), have %v", c.Decoder.OutShape)
	}
	if err := c.validateEncoder(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: missing solver")
	}
	if c.KLWeight < 0 {
		return fmt.Errorf("validate: KL weight must be >= 0")
	}
	if c.SeqLen <= 0 || c.Batch <= 0 {
		return fmt.Errorf("validate: sequence length (%v) and batch size "+
			"(%v) must be > 0", c.SeqLen, c.Batch)
	}
	return nil
}

// validateEncoder returns an error if the encoder does not take
// observations of the decoded shape or does not output embeddings of
// the size the core takes
func (c Config) validateEncoder() error {
	obs := c.Decoder.OutShape

	if c.ConvEncoder != nil {
		conv := c.ConvEncoder
		if conv.InChannels != obs[0] || conv.Height != obs[1] ||
			conv.Width != obs[2] {
			return fmt.Errorf("conv encoder input (%v, %v, %v) must match "+
				"observation shape %v", conv.InChannels, conv.Height,
				conv.Width, obs)
		}
		outDim, err := conv.OutDim()
		if err != nil {
			return err
		}
		if outDim != c.Core.EmbedDim {
			return fmt.Errorf("conv encoder output size %v must match "+
				"embedding size %v", outDim, c.Core.EmbedDim)
		}
		return nil
	}

	if c.Encoder.OutDim != c.Core.EmbedDim {
		return fmt.Errorf("encoder output size %v must match embedding "+
			"size %v", c.Encoder.OutDim, c.Core.EmbedDim)
	}
	if obsSize := obs[0] * obs[1] * obs[2]; c.Encoder.InDim != obsSize {
		return fmt.Errorf("encoder input size %v must match observation "+
			"size %v", c.Encoder.InDim, obsSize)
	}
	return nil
}

// ObsShape returns the (C, H, W) shape of observations
func (c Config) ObsShape() []int {
	return c.Decoder.OutShape
}
