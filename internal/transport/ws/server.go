// Package ws exposes the simulation over a websocket: path queries, agent
// spawning and movement commands as JSON messages.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-sim/internal/grid"
	"github.com/Faultbox/midgard-sim/internal/logger"
	"github.com/Faultbox/midgard-sim/internal/pathfind"
	"github.com/Faultbox/midgard-sim/internal/terrain"
	"github.com/Faultbox/midgard-sim/internal/world"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 5 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBuffer     = 32
)

// Sim is the part of the world the server drives.
type Sim interface {
	FindPathDebug(start, goal grid.Coord) (pathfind.Result, error)
	Submit(cmd world.Command)
	SpawnAgent(c grid.Coord, now float64) (world.AgentID, error)
	SpawnNPC(c grid.Coord, now float64) (world.AgentID, error)
	Object(id world.ObjectID) (world.ObjectView, bool)
	Objects() []world.ObjectView
	Agent(id world.AgentID) (world.AgentView, bool)
	Agents() []world.AgentView
	Terrain() *terrain.Terrain
	Now() float64
}

// Server upgrades HTTP requests and serves one reader and one writer
// goroutine per connection.
type Server struct {
	sim       Sim
	log       *zap.Logger
	writeWait time.Duration

	upgrader websocket.Upgrader

	ctx    context.Context // cancelled by Close
	cancel context.CancelFunc
}

// NewServer creates a server backed by sim.
func NewServer(sim Sim, log *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:       ctx,
		cancel:    cancel,
		sim:       sim,
		log:       logger.OrNop(log).Named("ws"),
		writeWait: defaultWriteWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetWriteTimeout overrides the per-message write deadline.
func (s *Server) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		s.writeWait = d
	}
}

// Close disconnects every client. Connections accepted afterwards are closed
// right after the upgrade.
func (s *Server) Close() {
	s.cancel()
}

// Handler returns the websocket endpoint.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.Debug("upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		remote := zap.String("remote", r.RemoteAddr)
		s.log.Info("client connected", remote)
		defer s.log.Info("client disconnected", remote)

		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()

		out := make(chan []byte, sendBuffer)
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.writePump(ctx, cancel, conn, out)
		}()

		s.readPump(ctx, conn, out)
		cancel()
		<-done
	}
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, out chan<- []byte) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("read failed", zap.Error(err))
			}
			return
		}

		b, err := json.Marshal(s.handle(msg))
		if err != nil {
			s.log.Error("encode reply", zap.Error(err))
			continue
		}
		select {
		case out <- b:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.SetReadDeadline(time.Now())
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.log.Debug("write failed", zap.Error(err))
				cancel()
				// Unblock the reader.
				_ = conn.SetReadDeadline(time.Now())
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				_ = conn.SetReadDeadline(time.Now())
				return
			}
		}
	}
}

// handle answers one request. Every request gets exactly one reply.
func (s *Server) handle(msg []byte) any {
	req, err := DecodeRequest(msg)
	if err != nil {
		s.log.Debug("rejected request", zap.Error(err))
		return ErrorReply{Type: TypeError, Code: CodeBadRequest, Message: err.Error()}
	}

	switch req.Type {
	case TypePath:
		res, err := s.sim.FindPathDebug(req.Start.coord(), req.Goal.coord())
		if err != nil {
			return errorReply(req.ID, err)
		}
		reply := PathResult{Type: TypePathResult, ID: req.ID, Path: vecsOf(res.Path), Cost: res.Cost}
		if req.Debug {
			reply.Explored = vecsOf(res.Explored)
		}
		return reply

	case TypeMove, TypeStop:
		id := world.AgentID(req.Agent)
		if _, ok := s.sim.Agent(id); !ok {
			return errorReply(req.ID, world.ErrUnknownAgent)
		}
		if req.Type == TypeMove {
			s.sim.Submit(world.CommandMove{Agent: id, Goal: req.Goal.coord()})
		} else {
			s.sim.Submit(world.CommandStop{Agent: id})
		}
		return Ack{Type: TypeAck, ID: req.ID, Agent: req.Agent}

	case TypeSpawn:
		spawn := s.sim.SpawnAgent
		if req.NPC {
			spawn = s.sim.SpawnNPC
		}
		id, err := spawn(req.At.coord(), s.sim.Now())
		if err != nil {
			return errorReply(req.ID, err)
		}
		return Ack{Type: TypeAck, ID: req.ID, Agent: uint64(id)}

	case TypeChop:
		id := world.AgentID(req.Agent)
		if _, ok := s.sim.Agent(id); !ok {
			return errorReply(req.ID, world.ErrUnknownAgent)
		}
		obj := world.ObjectID(req.Object)
		if _, ok := s.sim.Object(obj); !ok {
			return errorReply(req.ID, world.ErrUnknownObject)
		}
		s.sim.Submit(world.CommandChop{Agent: id, Object: obj})
		return Ack{Type: TypeAck, ID: req.ID, Agent: req.Agent}

	case TypeTerrain:
		t := s.sim.Terrain()
		if t == nil {
			return errorReply(req.ID, world.ErrNoTerrain)
		}
		return TerrainInfo{Type: TypeTerrainInfo, ID: req.ID, Seed: t.Seed, Size: t.Size, Biomes: t.Histogram()}

	case TypeAgents:
		views := s.sim.Agents()
		list := AgentList{Type: TypeAgentList, ID: req.ID, Agents: make([]AgentState, 0, len(views))}
		for _, v := range views {
			list.Agents = append(list.Agents, agentState(v))
		}
		return list

	case TypeObjects:
		views := s.sim.Objects()
		list := ObjectList{Type: TypeObjectList, ID: req.ID, Objects: make([]ObjectState, 0, len(views))}
		for _, v := range views {
			list.Objects = append(list.Objects, ObjectState{
				Object: uint64(v.ID),
				Kind:   v.Kind.String(),
				Cell:   vecOf(v.Cell),
				Age:    v.Age,
				Scale:  v.Scale,
			})
		}
		return list
	}
	return ErrorReply{Type: TypeError, ID: req.ID, Code: CodeBadRequest, Message: "unhandled type " + req.Type}
}

func agentState(v world.AgentView) AgentState {
	p := v.Pose.Position
	st := AgentState{
		Agent:    uint64(v.ID),
		Position: [3]float64{p.X, p.Y, p.Z},
		Yaw:      v.Pose.Orientation.Yaw(),
		State:    v.Pose.State.String(),
		Cell:     vecOf(v.Past.Cell),
		NPC:      v.NPC,
		Chopping: uint64(v.Chopping),
	}
	if v.Walking {
		t := vecOf(v.Target)
		st.Target = &t
	}
	return st
}

func errorReply(id string, err error) ErrorReply {
	return ErrorReply{Type: TypeError, ID: id, Code: errorCode(err), Message: err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, pathfind.ErrUnknownCell), errors.Is(err, world.ErrNoCell):
		return CodeUnknownCell
	case errors.Is(err, pathfind.ErrGoalImpassable):
		return CodeGoalImpassable
	case errors.Is(err, pathfind.ErrNoPath):
		return CodeNoPath
	case errors.Is(err, pathfind.ErrBudgetExceeded):
		return CodeBudget
	case errors.Is(err, world.ErrNoTerrain):
		return CodeNoTerrain
	case errors.Is(err, world.ErrImpassable):
		return CodeImpassable
	case errors.Is(err, world.ErrUnknownAgent):
		return CodeUnknownAgent
	case errors.Is(err, world.ErrUnknownObject):
		return CodeUnknownObject
	}
	return CodeInternal
}
