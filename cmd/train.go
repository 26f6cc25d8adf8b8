package cmd

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/jaypierce/moos-ivp-agent/config"
	"github.com/jaypierce/moos-ivp-agent/core"
	"github.com/jaypierce/moos-ivp-agent/policies"
)

func TrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a learner against a running simulator",
		Long: "Listens for the agent bridge of a MOOS-IvP mission, starts pEpisodeManager once it " +
			"is paused and learns over the reported episodes. Results go to <save-path>/<run id>.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done := signalContext()
			defer done()

			runID := flags.NewRun()
			if err := flags.Record(); err != nil {
				return fmt.Errorf("recording config: %w", err)
			}
			logger.Info("training", "run", runID, "learner", flags.Learner, "episodes", flags.Episodes)

			encoder, err := flags.Encoder()
			if err != nil {
				return err
			}
			logger.Debug("state space", "cells", encoder.Field().SpaceSize(), "states", encoder.Size(), "tracked", encoder.Tracked())

			constructor, err := learnerConstructor(flags, encoder)
			if err != nil {
				return err
			}
			learner := constructor.NewLearner(encoder.Size(), len(flags.Actions))

			result, err := serve(ctx, flags, encoder, learner, false)
			logResult(result)
			if err != nil {
				return err
			}
			if q, ok := learner.(interface{ Record(string, int) error }); ok {
				final := path.Join(flags.RunDir(), "tables", "final.jsonl")
				if err := q.Record(final, result.Episodes); err != nil {
					return fmt.Errorf("recording final table: %w", err)
				}
				logger.Info("saved table", "path", final)
			}
			return nil
		},
	}
	return cmd
}

func learnConfig(c *config.Config, encoder *core.StateEncoder) policies.QLearnConfig {
	return policies.QLearnConfig{
		Alpha:       c.Alpha,
		Gamma:       c.Gamma,
		Initial:     c.Initial,
		SaveDir:     path.Join(c.RunDir(), "tables"),
		Fingerprint: encoder.Field().Fingerprint(),
		Actions:     c.Actions,
		StateSpace:  encoder.Size(),
		Seed:        c.Seed,
	}
}

func learnerConstructor(c *config.Config, encoder *core.StateEncoder) (core.LearnerConstructor, error) {
	switch c.Learner {
	case config.LearnerQLearn:
		return policies.NewQLearnerConstructor(learnConfig(c, encoder)), nil
	case config.LearnerSoftmax:
		return policies.NewSoftmaxLearnerConstructor(learnConfig(c, encoder)), nil
	case config.LearnerRandom:
		return &policies.RandomLearnerConstructor{Seed: c.Seed}, nil
	}
	return nil, fmt.Errorf("%w: unknown learner %q", config.ErrConfig, c.Learner)
}
