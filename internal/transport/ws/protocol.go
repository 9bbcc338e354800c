package ws

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Faultbox/midgard-sim/internal/grid"
)

// Request types.
const (
	TypePath    = "PATH"
	TypeMove    = "MOVE"
	TypeStop    = "STOP"
	TypeSpawn   = "SPAWN"
	TypeChop    = "CHOP"
	TypeTerrain = "TERRAIN"
	TypeAgents  = "AGENTS"
	TypeObjects = "OBJECTS"
)

// Reply types.
const (
	TypePathResult  = "PATH_RESULT"
	TypeAck         = "ACK"
	TypeError       = "ERROR"
	TypeTerrainInfo = "TERRAIN_INFO"
	TypeAgentList   = "AGENT_LIST"
	TypeObjectList  = "OBJECT_LIST"
)

// Error codes carried by ERROR replies.
const (
	CodeBadRequest     = "bad_request"
	CodeUnknownCell    = "unknown_cell"
	CodeGoalImpassable = "goal_impassable"
	CodeNoPath         = "no_path"
	CodeBudget         = "budget_exceeded"
	CodeNoTerrain      = "no_terrain"
	CodeImpassable     = "impassable"
	CodeUnknownAgent   = "unknown_agent"
	CodeUnknownObject  = "unknown_object"
	CodeInternal       = "internal"
)

//go:embed request.schema.json
var requestSchemaJSON string

var requestSchema = jsonschema.MustCompileString("request.schema.json", requestSchemaJSON)

// Vec is a grid coordinate on the wire as [x, y, z].
type Vec [3]int

func (v Vec) coord() grid.Coord {
	return grid.Coord{X: v[0], Y: v[1], Z: v[2]}
}

func vecOf(c grid.Coord) Vec {
	return Vec{c.X, c.Y, c.Z}
}

func vecsOf(cs []grid.Coord) []Vec {
	out := make([]Vec, len(cs))
	for i, c := range cs {
		out[i] = vecOf(c)
	}
	return out
}

// Request is the union of all inbound messages. Which fields are set
// depends on Type.
type Request struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Start  Vec    `json:"start"`
	Goal   Vec    `json:"goal"`
	Debug  bool   `json:"debug,omitempty"`
	Agent  uint64 `json:"agent"`
	At     Vec    `json:"at"`
	NPC    bool   `json:"npc,omitempty"`
	Object uint64 `json:"object"`
}

// DecodeRequest validates msg against the request schema and decodes it.
func DecodeRequest(msg []byte) (Request, error) {
	var doc any
	if err := json.Unmarshal(msg, &doc); err != nil {
		return Request{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := requestSchema.Validate(doc); err != nil {
		return Request{}, fmt.Errorf("invalid request: %w", err)
	}
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return Request{}, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// PathResult answers PATH.
type PathResult struct {
	Type     string  `json:"type"`
	ID       string  `json:"id,omitempty"`
	Path     []Vec   `json:"path"`
	Cost     float64 `json:"cost"`
	Explored []Vec   `json:"explored,omitempty"`
}

// Ack answers MOVE, STOP, SPAWN and CHOP. Agent is the spawned or addressed agent.
type Ack struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Agent uint64 `json:"agent"`
}

// ErrorReply reports a rejected request.
type ErrorReply struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TerrainInfo answers TERRAIN.
type TerrainInfo struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Seed   int64          `json:"seed"`
	Size   int            `json:"size"`
	Biomes map[string]int `json:"biomes"`
}

// AgentState is one agent in an AGENT_LIST reply.
type AgentState struct {
	Agent    uint64     `json:"agent"`
	Position [3]float64 `json:"position"`
	Yaw      float64    `json:"yaw"`
	State    string     `json:"state"`
	Cell     Vec        `json:"cell"`
	Target   *Vec       `json:"target,omitempty"`
	NPC      bool       `json:"npc,omitempty"`
	Chopping uint64     `json:"chopping,omitempty"`
}

// AgentList answers AGENTS.
type AgentList struct {
	Type   string       `json:"type"`
	ID     string       `json:"id,omitempty"`
	Agents []AgentState `json:"agents"`
}

// ObjectState is one object in an OBJECT_LIST reply.
type ObjectState struct {
	Object uint64  `json:"object"`
	Kind   string  `json:"kind"`
	Cell   Vec     `json:"cell"`
	Age    float64 `json:"age"`
	Scale  float64 `json:"scale"`
}

// ObjectList answers OBJECTS.
type ObjectList struct {
	Type    string        `json:"type"`
	ID      string        `json:"id,omitempty"`
	Objects []ObjectState `json:"objects"`
}
