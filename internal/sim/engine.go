package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"geodash/internal/model"
)

type AgentState struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VelocityY float64 `json:"velocity_y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Grounded  bool    `json:"grounded"`
}

type Obstacle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Speed  float64 `json:"speed"`
	// Color is presentation-only and never feeds back into the simulation.
	Color string `json:"color"`
}

// Outcome is the scalar result of one episode. SurvivalTime is the fitness
// signal; Terminated distinguishes collision from the duration cap.
type Outcome struct {
	SurvivalTime     float64 `json:"survival_time"`
	Terminated       bool    `json:"terminated"`
	Steps            int     `json:"steps"`
	ObstaclesSpawned int     `json:"obstacles_spawned"`
	JumpsTriggered   int     `json:"jumps_triggered"`
}

// StepState is the per-step snapshot handed to an Observer. Renderers consume
// it; nothing in it may influence the episode.
type StepState struct {
	Elapsed    float64
	Agent      AgentState
	Obstacles  []Obstacle
	Terminated bool
}

// Observer is invoked after every completed step. Presentation hook only.
type Observer func(StepState)

var obstaclePalette = []string{"#e74c3c", "#e67e22", "#f1c40f", "#2ecc71", "#9b59b6"}

// Engine evaluates policies on one fixed course. It holds no episode state;
// every Evaluate call owns a fresh Episode, so one Engine is safe for
// concurrent Evaluate calls as long as each caller supplies its own RNG.
type Engine struct {
	name string
	cfg  Config
}

func NewEngine(name string, cfg Config) (*Engine, error) {
	if name == "" {
		return nil, errors.New("course name is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("course %s: %w", name, err)
	}
	return &Engine{name: name, cfg: cfg}, nil
}

func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate runs one episode of genes against this course. The RNG stream
// drives obstacle spawn timing only and must be private to the episode.
func (e *Engine) Evaluate(ctx context.Context, genes model.Genes, rng *rand.Rand) (Outcome, error) {
	return e.EvaluateObserved(ctx, genes, rng, nil)
}

func (e *Engine) EvaluateObserved(ctx context.Context, genes model.Genes, rng *rand.Rand, observe Observer) (Outcome, error) {
	if rng == nil {
		return Outcome{}, errors.New("episode random source is required")
	}

	ep := newEpisode(e.cfg, rng)
	for !ep.terminated && ep.elapsed < e.cfg.MaxDuration {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		ep.step(genes)
		if observe != nil {
			observe(StepState{
				Elapsed:    ep.elapsed,
				Agent:      ep.agent,
				Obstacles:  append([]Obstacle(nil), ep.obstacles...),
				Terminated: ep.terminated,
			})
		}
	}

	return Outcome{
		SurvivalTime:     ep.elapsed,
		Terminated:       ep.terminated,
		Steps:            ep.steps,
		ObstaclesSpawned: ep.spawned,
		JumpsTriggered:   ep.jumps,
	}, nil
}

// episode owns all mutable state of one run. Spawn timers live here rather
// than in package state so independent episodes never share counters.
type episode struct {
	cfg Config
	rng *rand.Rand

	agent      AgentState
	obstacles  []Obstacle
	elapsed    float64
	terminated bool

	spawnTimer float64
	nextSpawn  float64

	steps   int
	spawned int
	jumps   int
}

func newEpisode(cfg Config, rng *rand.Rand) *episode {
	return &episode{
		cfg: cfg,
		rng: rng,
		agent: AgentState{
			X:        cfg.AgentX,
			Y:        cfg.FieldHeight - cfg.AgentHeight,
			Width:    cfg.AgentWidth,
			Height:   cfg.AgentHeight,
			Grounded: true,
		},
		nextSpawn: drawSpawnInterval(rng, cfg),
	}
}

func drawSpawnInterval(rng *rand.Rand, cfg Config) float64 {
	return cfg.SpawnIntervalMin + rng.Float64()*(cfg.SpawnIntervalMax-cfg.SpawnIntervalMin)
}

// step advances the episode by one fixed timestep: physics, jump decision,
// spawning, obstacle motion, collision, in that order.
func (ep *episode) step(genes model.Genes) {
	dt := ep.cfg.TimeStep
	ep.elapsed += dt
	ep.steps++

	groundY := ep.cfg.FieldHeight - ep.cfg.AgentHeight
	if !ep.agent.Grounded {
		ep.agent.VelocityY += ep.cfg.Gravity * dt
		ep.agent.Y += ep.agent.VelocityY * dt
		if ep.agent.Y >= groundY {
			ep.agent.Y = groundY
			ep.agent.VelocityY = 0
			ep.agent.Grounded = true
		}
	}

	if ep.decide(genes) && ep.agent.Grounded {
		ep.agent.VelocityY = ep.cfg.JumpImpulse
		ep.agent.Grounded = false
		ep.jumps++
	}

	ep.spawnTimer += dt
	if ep.spawnTimer >= ep.nextSpawn {
		ep.obstacles = append(ep.obstacles, Obstacle{
			X:      ep.cfg.FieldWidth,
			Y:      ep.cfg.FieldHeight - ep.cfg.ObstacleHeight,
			Width:  ep.cfg.ObstacleWidth,
			Height: ep.cfg.ObstacleHeight,
			Speed:  ep.cfg.ObstacleSpeed,
			Color:  obstaclePalette[ep.spawned%len(obstaclePalette)],
		})
		ep.spawned++
		ep.spawnTimer = 0
		ep.nextSpawn = drawSpawnInterval(ep.rng, ep.cfg)
	}

	live := ep.obstacles[:0]
	for _, obst := range ep.obstacles {
		obst.X -= obst.Speed * dt
		if obst.X+obst.Width >= 0 {
			live = append(live, obst)
		}
	}
	ep.obstacles = live

	for _, obst := range ep.obstacles {
		if aabbOverlap(
			ep.agent.X, ep.agent.Y, ep.agent.Width, ep.agent.Height,
			obst.X, obst.Y, obst.Width, obst.Height,
		) {
			ep.terminated = true
			break
		}
	}
}

// decide evaluates the linear policy against the normalized observation.
// NaN genes propagate into the output, where `out > 0` is false, so a
// malformed policy simply never jumps and the episode still terminates.
func (ep *episode) decide(genes model.Genes) bool {
	normDist, normHeight := ep.observation()
	out := genes[0]*normDist + genes[1]*normHeight + genes[2]
	return out > 0
}

// observation builds the policy inputs: horizontal distance to the nearest
// obstacle whose trailing edge is still ahead of the agent's leading edge
// (sentinel when none), normalized by playfield width, plus the agent's
// vertical position normalized by playfield height.
func (ep *episode) observation() (normDist, normHeight float64) {
	leadingEdge := ep.agent.X + ep.agent.Width
	raw := ep.cfg.NoObstacleDistance
	found := false
	for _, obst := range ep.obstacles {
		if obst.X+obst.Width <= leadingEdge {
			continue
		}
		d := obst.X - leadingEdge
		if !found || d < raw {
			raw = d
			found = true
		}
	}
	normDist = clamp01(raw / ep.cfg.FieldWidth)
	normHeight = ep.agent.Y / ep.cfg.FieldHeight
	return normDist, normHeight
}

func aabbOverlap(ax, ay, aw, ah, bx, by, bw, bh float64) bool {
	return ax < bx+bw && bx < ax+aw && ay < by+bh && by < ay+ah
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
