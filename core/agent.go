package core

// Transition is one learning update. Terminal transitions carry the episode
// outcome reward and have no successor to bootstrap from.
type Transition struct {
	Prev     int
	Action   int
	Reward   float64
	Next     int
	Terminal bool
}

// Learner is the decision-making collaborator driven by the Synchronizer.
// States are encoded decision states, actions index SyncConfig.Actions.
type Learner interface {
	SelectAction(state int, epsilon float64) int
	RecordTransition(Transition)
	// OnEpisodeBoundary is called every SaveEvery recorded episodes.
	OnEpisodeBoundary(episodeCount int) error
}

type LearnerConstructor interface {
	NewLearner(stateSpace, actionSpace int) Learner
}
