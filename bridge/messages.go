package bridge

// CtrlMsg tells BHV_Agent what to do with an instruction.
type CtrlMsg string

const (
	CtrlSendState CtrlMsg = "SEND_STATE"
	CtrlPause     CtrlMsg = "PAUSE"
)

// ManagerState mirrors pEpisodeManager's EPISODE_MNGR_STATE.
type ManagerState string

const (
	ManagerPaused  ManagerState = "PAUSED"
	ManagerRunning ManagerState = "RUNNING"
)

// Instruction is sent to the simulator once per tick.
type Instruction struct {
	Speed float64
	// degrees
	Course float64
	// Posts are MOOS variables to publish on the simulator side. Server.Send
	// fills them from its post queue and rejects instructions that set them.
	Posts map[string]string
	Ctrl  CtrlMsg
}

// NodeReport holds the numeric fields of one vehicle's node report.
type NodeReport map[string]float64

func (n NodeReport) Position() (x, y float64, ok bool) {
	x, okX := n["NAV_X"]
	y, okY := n["NAV_Y"]
	return x, y, okX && okY
}

// Snapshot is the simulator state received once per tick. It is built by
// the codec and must not be modified afterwards.
type Snapshot struct {
	NavX     float64
	NavY     float64
	VName    string
	HelmTime float64
	// keyed by vehicle name
	NodeReports  map[string]NodeReport
	ManagerState ManagerState
	// nil when pEpisodeManager has not reported yet
	Report *string
}

func (s *Snapshot) HasReport() bool {
	return s.Report != nil
}

// wire forms

type instructionWire struct {
	Speed  float64           `json:"speed"`
	Course float64           `json:"course"`
	Posts  map[string]string `json:"posts"`
	Ctrl   CtrlMsg           `json:"ctrl_msg" jsonschema:"enum=SEND_STATE,enum=PAUSE"`
}

type snapshotWire struct {
	NavX         *float64                      `json:"NAV_X"`
	NavY         *float64                      `json:"NAV_Y"`
	VName        *string                       `json:"VNAME"`
	HelmTime     *float64                      `json:"HELM_TIME"`
	NodeReports  map[string]map[string]float64 `json:"NODE_REPORTS"`
	ManagerState *string                       `json:"EPISODE_MNGR_STATE"`
	Report       *string                       `json:"EPISODE_MNGR_REPORT,omitempty"`
}
