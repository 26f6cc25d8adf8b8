package bridge

import (
	"encoding/json"
	"fmt"
)

// Codec converts instructions and snapshots to and from frame payloads.
type Codec interface {
	Encode(Instruction) ([]byte, error)
	Decode([]byte) (*Snapshot, error)
}

// JSONCodec is the codec spoken by BHV_Agent.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Encode(instr Instruction) ([]byte, error) {
	posts := instr.Posts
	if posts == nil {
		posts = map[string]string{}
	}
	ctrl := instr.Ctrl
	if ctrl == "" {
		ctrl = CtrlSendState
	}
	bs, err := json.Marshal(instructionWire{
		Speed:  instr.Speed,
		Course: instr.Course,
		Posts:  posts,
		Ctrl:   ctrl,
	})
	if err != nil {
		return nil, fmt.Errorf("encode instruction: %w", err)
	}
	return bs, nil
}

// Decode either returns a complete snapshot or an ErrDecode error. Keys are
// matched exactly; keys that only differ in case are ignored like any other
// unknown key.
func (JSONCodec) Decode(frame []byte) (*Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: frame is not an object", ErrDecode)
	}

	var wire snapshotWire
	for _, f := range []struct {
		key string
		dst interface{}
	}{
		{"NAV_X", &wire.NavX},
		{"NAV_Y", &wire.NavY},
		{"VNAME", &wire.VName},
		{"HELM_TIME", &wire.HelmTime},
		{"NODE_REPORTS", &wire.NodeReports},
		{"EPISODE_MNGR_STATE", &wire.ManagerState},
		{"EPISODE_MNGR_REPORT", &wire.Report},
	} {
		raw, ok := fields[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDecode, f.key, err)
		}
	}

	switch {
	case wire.NavX == nil:
		return nil, missingField("NAV_X")
	case wire.NavY == nil:
		return nil, missingField("NAV_Y")
	case wire.VName == nil:
		return nil, missingField("VNAME")
	case wire.HelmTime == nil:
		return nil, missingField("HELM_TIME")
	case wire.NodeReports == nil:
		return nil, missingField("NODE_REPORTS")
	case wire.ManagerState == nil:
		return nil, missingField("EPISODE_MNGR_STATE")
	}

	reports := make(map[string]NodeReport, len(wire.NodeReports))
	for name, fields := range wire.NodeReports {
		if fields == nil {
			return nil, fmt.Errorf("%w: node report for %q is null", ErrDecode, name)
		}
		reports[name] = NodeReport(fields)
	}

	snapshot := &Snapshot{
		NavX:         *wire.NavX,
		NavY:         *wire.NavY,
		VName:        *wire.VName,
		HelmTime:     *wire.HelmTime,
		NodeReports:  reports,
		ManagerState: ManagerState(*wire.ManagerState),
	}
	if wire.Report != nil && *wire.Report != "" {
		raw := *wire.Report
		snapshot.Report = &raw
	}
	return snapshot, nil
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing required field %s", ErrDecode, name)
}
