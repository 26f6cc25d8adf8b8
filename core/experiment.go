package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

var ErrInvalidConfig = errors.New("invalid synchronizer config")

// Action is one entry of the discrete action table.
type Action struct {
	Speed  float64 `json:"speed"`
	Course float64 `json:"course"`
}

// Post is a MOOS variable published through the bridge.
type Post struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SyncConfig is everything the Synchronizer needs besides its collaborators.
// It is copied on construction and never modified afterwards.
type SyncConfig struct {
	Actions []Action

	RewardSuccess float64
	RewardFailure float64
	RewardStep    float64

	// reports with a shorter DURATION are treated as simulator glitches
	ViabilityThreshold float64

	// 0 runs until the connection is closed
	Episodes int

	EpsilonStart       float64
	EpsilonDecayStart  int
	EpsilonDecayEnd    int
	EpsilonDecayAmount float64

	SaveEvery int

	ReferencePoint r2.Vec
	FlagGrabRadius float64
	FlagGrabKey    string

	StartPost Post
	StopPost  Post

	// Evaluate runs the learner greedily without the handshake or updates.
	Evaluate bool
}

func DefaultSyncConfig() SyncConfig {
	actions := make([]Action, 0, 8)
	for course := 0.0; course < 360; course += 45 {
		actions = append(actions, Action{Speed: 2, Course: course})
	}
	return SyncConfig{
		Actions:            actions,
		RewardSuccess:      50,
		RewardFailure:      -50,
		RewardStep:         -1,
		ViabilityThreshold: 2,
		Episodes:           1000,
		EpsilonStart:       0.4,
		EpsilonDecayStart:  100,
		EpsilonDecayEnd:    800,
		EpsilonDecayAmount: 0.0005,
		SaveEvery:          100,
		ReferencePoint:     r2.Vec{X: 50, Y: -24},
		FlagGrabRadius:     10,
		FlagGrabKey:        "FLAG_GRAB_REQUEST",
		StartPost:          Post{Key: "EPISODE_MNGR_CTRL", Value: "type=start"},
		StopPost:           Post{Key: "EPISODE_MNGR_CTRL", Value: "type=hardstop"},
	}
}

func (c SyncConfig) Validate() error {
	switch {
	case len(c.Actions) == 0:
		return fmt.Errorf("%w: empty action table", ErrInvalidConfig)
	case c.ViabilityThreshold < 0:
		return fmt.Errorf("%w: negative viability threshold %v", ErrInvalidConfig, c.ViabilityThreshold)
	case c.Episodes < 0:
		return fmt.Errorf("%w: negative episode count %d", ErrInvalidConfig, c.Episodes)
	case c.SaveEvery < 0:
		return fmt.Errorf("%w: negative save cadence %d", ErrInvalidConfig, c.SaveEvery)
	case !finite(c.RewardSuccess, c.RewardFailure, c.RewardStep, c.ViabilityThreshold, c.EpsilonDecayAmount):
		return fmt.Errorf("%w: rewards, viability threshold and epsilon decay must be finite", ErrInvalidConfig)
	case !(c.EpsilonStart >= 0 && c.EpsilonStart <= 1):
		return fmt.Errorf("%w: epsilon %v outside [0, 1]", ErrInvalidConfig, c.EpsilonStart)
	case c.EpsilonDecayEnd < c.EpsilonDecayStart:
		return fmt.Errorf("%w: epsilon decay ends before it starts", ErrInvalidConfig)
	}
	return nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (c SyncConfig) clone() SyncConfig {
	c.Actions = append([]Action(nil), c.Actions...)
	return c
}

// Analyzer consumes finished episodes.
type Analyzer interface {
	Analyze(*EpisodeSummary, *Trace)
	Close() error
}
