package bridge

import (
	"github.com/invopop/jsonschema"
)

// InstructionSchema describes the JSON payload the agent sends each tick.
func InstructionSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(new(instructionWire))
	schema.Title = "Agent instruction"
	schema.Description = "Sent by the agent to BHV_Agent once per simulator tick; posts are published once"
	return schema
}

// SnapshotSchema describes the JSON payload the simulator sends each tick.
func SnapshotSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(new(snapshotWire))
	schema.Title = "Simulator snapshot"
	schema.Description = "Sent by BHV_Agent in reply to every instruction"
	return schema
}
