package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaypierce/moos-ivp-agent/config"
	"github.com/jaypierce/moos-ivp-agent/core"
	"github.com/jaypierce/moos-ivp-agent/policies"
)

func RunCommand() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a recorded table greedily without learning",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done := signalContext()
			defer done()

			encoder, err := flags.Encoder()
			if err != nil {
				return err
			}
			learner, err := loadLearner(flags, encoder, model)
			if err != nil {
				return err
			}

			runID := flags.NewRun()
			if err := flags.Record(); err != nil {
				return fmt.Errorf("recording config: %w", err)
			}
			logger.Info("evaluating", "run", runID, "model", model)

			result, err := serve(ctx, flags, encoder, learner, true)
			logResult(result)
			return err
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Table recorded by train")
	cmd.MarkFlagRequired("model")
	return cmd
}

// loadLearner reads a recorded table into a frozen learner.
func loadLearner(c *config.Config, encoder *core.StateEncoder, model string) (core.Learner, error) {
	var q *policies.QLearner
	var learner core.Learner
	switch c.Learner {
	case config.LearnerQLearn:
		q = policies.NewQLearner(learnConfig(c, encoder))
		learner = q
	case config.LearnerSoftmax:
		s := policies.NewSoftmaxLearner(learnConfig(c, encoder))
		q = s.QLearner
		learner = s
	default:
		return nil, fmt.Errorf("%w: learner %q has no table to load", config.ErrConfig, c.Learner)
	}
	if err := q.Load(model); err != nil {
		if errors.Is(err, policies.ErrFieldMismatch) {
			return nil, fmt.Errorf("%w, check --track and the field settings", err)
		}
		return nil, err
	}
	q.Freeze()
	logger.Info("loaded table", "path", model, "states", q.Table().Size())
	return learner, nil
}
