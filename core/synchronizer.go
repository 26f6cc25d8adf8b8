package core

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/jaypierce/moos-ivp-agent/bridge"
	"github.com/jaypierce/moos-ivp-agent/report"
)

var (
	ErrProtocolViolation = errors.New("episode protocol violation")
	ErrStaleEpisode      = errors.New("stale episode report")
	ErrInvalidAction     = errors.New("learner returned an invalid action")
	ErrNotRunning        = errors.New("synchronizer is not running")
)

// Conn is the lockstep connection to the simulator, satisfied by
// *bridge.Server.
type Conn interface {
	Send(bridge.Instruction) error
	Receive() (*bridge.Snapshot, error)
	Post(key, value string)
	Close() error
}

var _ Conn = &bridge.Server{}

type Phase int

const (
	AwaitingPause Phase = iota
	Running
	ConnectionClosed
)

func (p Phase) String() string {
	switch p {
	case AwaitingPause:
		return "awaiting-pause"
	case Running:
		return "running"
	case ConnectionClosed:
		return "connection-closed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Synchronizer keeps the learner in step with the simulator's episodes. It
// owns the EpisodeContext and is driven by a single goroutine.
type Synchronizer struct {
	config    SyncConfig
	conn      Conn
	encoder   *StateEncoder
	learner   Learner
	analyzers []Analyzer
	logger    *log.Logger

	phase   Phase
	episode *EpisodeContext
	epsilon float64

	prevState int
	hasPrev   bool
	action    int
	decided   bool

	ticks int
	stale int
}

type SyncOption func(*Synchronizer)

func WithAnalyzers(analyzers ...Analyzer) SyncOption {
	return func(s *Synchronizer) {
		s.analyzers = append(s.analyzers, analyzers...)
	}
}

func WithSyncLogger(l *log.Logger) SyncOption {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

func NewSynchronizer(config SyncConfig, conn Conn, encoder *StateEncoder, learner Learner, opts ...SyncOption) (*Synchronizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Synchronizer{
		config:  config.clone(),
		conn:    conn,
		encoder: encoder,
		learner: learner,
		logger:  log.New(io.Discard),
		phase:   AwaitingPause,
		episode: NewEpisodeContext(),
		epsilon: config.EpsilonStart,
	}
	if config.Evaluate {
		s.epsilon = 0
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Synchronizer) Phase() Phase {
	return s.phase
}

func (s *Synchronizer) Episode() *EpisodeContext {
	return s.episode
}

func (s *Synchronizer) Epsilon() float64 {
	return s.epsilon
}

// Done reports whether the configured number of episodes was recorded.
func (s *Synchronizer) Done() bool {
	return s.config.Episodes > 0 && s.episode.EpisodeCount >= s.config.Episodes
}

// Handshake polls the simulator until pEpisodeManager is paused, then sends
// the start post once. In evaluate mode it only sends the first request.
func (s *Synchronizer) Handshake() error {
	if s.phase != AwaitingPause {
		return fmt.Errorf("%w: handshake in phase %s", ErrProtocolViolation, s.phase)
	}
	request := s.stateRequest()
	if s.config.Evaluate {
		if err := s.conn.Send(request); err != nil {
			return s.closed(err)
		}
		s.phase = Running
		return nil
	}

	for polls := 0; ; polls++ {
		if err := s.conn.Send(request); err != nil {
			return s.closed(err)
		}
		snapshot, err := s.conn.Receive()
		if err != nil {
			return s.closed(err)
		}
		if snapshot.ManagerState == bridge.ManagerPaused {
			break
		}
		if polls == 0 {
			s.logger.Info("waiting for pEpisodeManager", "state", snapshot.ManagerState)
		}
	}

	s.conn.Post(s.config.StartPost.Key, s.config.StartPost.Value)
	if err := s.conn.Send(request); err != nil {
		return s.closed(err)
	}
	s.phase = Running
	s.logger.Info("episodes started", "episodes", s.config.Episodes, "epsilon", s.epsilon)
	return nil
}

// Process handles one snapshot while running and returns the instruction to
// send in reply.
func (s *Synchronizer) Process(snapshot *bridge.Snapshot) (bridge.Instruction, error) {
	if s.phase != Running {
		return bridge.Instruction{}, fmt.Errorf("%w: phase %s", ErrNotRunning, s.phase)
	}
	var rep *report.Report
	if snapshot.HasReport() {
		r, err := report.Parse(*snapshot.Report)
		if err != nil {
			return bridge.Instruction{}, err
		}
		rep = &r
	}

	s.ticks++
	s.episode.ObserveHelmTime(snapshot.HelmTime)

	state := s.encoder.Encode(snapshot)
	if !s.decided || state != s.prevState {
		if err := s.decide(state, rep, snapshot); err != nil {
			return bridge.Instruction{}, err
		}
	}

	position := r2.Vec{X: snapshot.NavX, Y: snapshot.NavY}
	flagDist := r2.Norm(r2.Sub(position, s.config.ReferencePoint))
	if flagDist < s.config.FlagGrabRadius {
		s.conn.Post(s.config.FlagGrabKey, "vname="+snapshot.VName)
	}
	s.episode.ObserveDistance(flagDist)

	action := s.config.Actions[s.action]
	return bridge.Instruction{
		Speed:  action.Speed,
		Course: action.Course,
		Ctrl:   bridge.CtrlSendState,
	}, nil
}

// decide runs a decision event for a changed decision state.
func (s *Synchronizer) decide(state int, rep *report.Report, snapshot *bridge.Snapshot) error {
	first := !s.decided
	s.decided = true

	switch {
	case rep == nil:
		if !s.config.Evaluate && s.episode.EpisodeCount > 0 {
			return fmt.Errorf("%w: report missing after %d recorded episodes", ErrProtocolViolation, s.episode.EpisodeCount)
		}
	case s.config.Evaluate:
		if err := s.observeEvaluation(rep); err != nil {
			return err
		}
	case first:
		return fmt.Errorf("%w: episode %d reported before the first decision", ErrProtocolViolation, rep.Episode)
	case s.episode.IsNewEpisode(rep.Episode):
		if err := s.finalize(rep, state); err != nil {
			return err
		}
	}

	if s.hasPrev && !s.config.Evaluate {
		s.learner.RecordTransition(Transition{
			Prev:   s.prevState,
			Action: s.action,
			Reward: s.config.RewardStep,
			Next:   state,
		})
		s.episode.EpisodeReward += s.config.RewardStep
	}

	action := s.learner.SelectAction(state, s.epsilon)
	if action < 0 || action >= len(s.config.Actions) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidAction, action, len(s.config.Actions))
	}
	s.action = action
	s.episode.Decisions++
	s.episode.Trace.AddStep(&Step{
		State:    state,
		Action:   action,
		Reward:   s.episode.EpisodeReward,
		X:        snapshot.NavX,
		Y:        snapshot.NavY,
		HelmTime: snapshot.HelmTime,
	})

	s.prevState = state
	s.hasPrev = true
	return nil
}

// finalize closes the previous episode on a report with a new episode number.
func (s *Synchronizer) finalize(rep *report.Report, state int) error {
	summary := s.summary(rep)
	if rep.Duration < s.config.ViabilityThreshold {
		s.stale++
		summary.Stale = true
		s.logger.Warn("discarding episode",
			"err", ErrStaleEpisode,
			"episode", rep.Episode,
			"duration", rep.Elapsed(),
			"threshold", s.config.ViabilityThreshold,
		)
	} else {
		reward := s.config.RewardFailure
		if rep.Success {
			reward = s.config.RewardSuccess
		}
		if s.hasPrev {
			s.learner.RecordTransition(Transition{
				Prev:     s.prevState,
				Action:   s.action,
				Reward:   reward,
				Next:     state,
				Terminal: true,
			})
		}
		s.episode.EpisodeReward += reward
		summary.Reward = s.episode.EpisodeReward

		s.episode.EpisodeCount++
		count := s.episode.EpisodeCount
		if s.config.EpsilonDecayStart <= count && count <= s.config.EpsilonDecayEnd {
			s.epsilon = math.Max(0, s.epsilon-s.config.EpsilonDecayAmount)
		}
		s.logger.Debug("episode recorded",
			"index", summary.Index,
			"episode", rep.Episode,
			"reward", summary.Reward,
			"success", rep.Success,
		)
		if s.config.SaveEvery > 0 && count%s.config.SaveEvery == 0 {
			if err := s.learner.OnEpisodeBoundary(count); err != nil {
				return fmt.Errorf("episode boundary %d: %w", count, err)
			}
		}
	}
	s.boundary(rep, summary)
	return nil
}

// observeEvaluation tracks episodes without learning. The first report only
// tells which episode is in progress.
func (s *Synchronizer) observeEvaluation(rep *report.Report) error {
	if !s.episode.IsNewEpisode(rep.Episode) {
		return nil
	}
	if !s.episode.KnowsEpisode() {
		s.episode.MarkEpisode(rep.Episode)
		return nil
	}
	summary := s.summary(rep)
	if rep.Duration < s.config.ViabilityThreshold {
		s.stale++
		summary.Stale = true
		s.logger.Error("small duration value", "err", ErrStaleEpisode, "episode", rep.Episode, "duration", rep.Elapsed())
	} else {
		s.episode.EpisodeCount++
	}
	s.boundary(rep, summary)
	return nil
}

func (s *Synchronizer) summary(rep *report.Report) *EpisodeSummary {
	return &EpisodeSummary{
		Index:       s.episode.EpisodeCount,
		Number:      rep.Episode,
		Reward:      s.episode.EpisodeReward,
		Duration:    rep.Duration,
		Success:     rep.Success,
		Evaluate:    s.config.Evaluate,
		Epsilon:     s.epsilon,
		Decisions:   s.episode.Decisions,
		MinDistance: s.episode.MinDistance,
		AvgDelta:    s.episode.MeanLoopTime(),
	}
}

// boundary hands the finished episode to the analyzers and resets the
// accumulators, viable or not.
func (s *Synchronizer) boundary(rep *report.Report, summary *EpisodeSummary) {
	for _, a := range s.analyzers {
		a.Analyze(summary, s.episode.Trace)
	}
	s.episode.MarkEpisode(rep.Episode)
	s.episode.Reset()
	s.hasPrev = false
}

// pause stops the vehicle and the episode manager.
func (s *Synchronizer) pause() bridge.Instruction {
	s.conn.Post(s.config.StopPost.Key, s.config.StopPost.Value)
	return bridge.Instruction{Ctrl: bridge.CtrlPause}
}

func (s *Synchronizer) stateRequest() bridge.Instruction {
	return bridge.Instruction{Ctrl: bridge.CtrlSendState}
}

func (s *Synchronizer) closed(err error) error {
	s.phase = ConnectionClosed
	return err
}
