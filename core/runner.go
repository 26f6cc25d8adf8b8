package core

import (
	"context"
	"errors"
	"fmt"
)

type RunResult struct {
	Episodes      int
	StaleEpisodes int
	Ticks         int
	Epsilon       float64
	// set when the run ended because the context was cancelled
	Cancelled bool
}

// Run drives the lockstep loop until the configured number of episodes was
// recorded, the connection fails or ctx is cancelled. The connection is
// closed on every path; cancelling ctx closes it right away to unblock a
// pending Receive.
func (s *Synchronizer) Run(ctx context.Context) (*RunResult, error) {
	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer func() {
		stop()
		s.conn.Close()
		s.phase = ConnectionClosed
		for _, a := range s.analyzers {
			if err := a.Close(); err != nil {
				s.logger.Error("closing analyzer", "err", err)
			}
		}
	}()

	if err := s.Handshake(); err != nil {
		return s.result(ctx), s.runErr(ctx, "handshake", err)
	}

	for {
		snapshot, err := s.conn.Receive()
		if err != nil {
			return s.result(ctx), s.runErr(ctx, "receive", err)
		}
		instr, err := s.Process(snapshot)
		if err != nil {
			return s.result(ctx), err
		}
		if s.Done() {
			break
		}
		if err := s.conn.Send(instr); err != nil {
			return s.result(ctx), s.runErr(ctx, "send", err)
		}
	}

	s.logger.Info("all episodes recorded, pausing simulator", "episodes", s.episode.EpisodeCount)
	if err := s.conn.Send(s.pause()); err != nil {
		return s.result(ctx), s.runErr(ctx, "pause", err)
	}
	return s.result(ctx), nil
}

func (s *Synchronizer) result(ctx context.Context) *RunResult {
	return &RunResult{
		Episodes:      s.episode.EpisodeCount,
		StaleEpisodes: s.stale,
		Ticks:         s.ticks,
		Epsilon:       s.epsilon,
		Cancelled:     ctx.Err() != nil,
	}
}

// runErr attributes connection errors caused by cancellation to ctx.
func (s *Synchronizer) runErr(ctx context.Context, op string, err error) error {
	s.phase = ConnectionClosed
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(ctx.Err(), err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
