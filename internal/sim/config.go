package sim

import "fmt"

// Config fixes every parameter of one course. Playfield dimensions feed the
// policy's input normalization only; the physics constants are absolute
// pixel-space magnitudes.
type Config struct {
	FieldWidth  float64 `json:"field_width"`
	FieldHeight float64 `json:"field_height"`

	AgentX      float64 `json:"agent_x"`
	AgentWidth  float64 `json:"agent_width"`
	AgentHeight float64 `json:"agent_height"`

	// Gravity pulls down (canvas coordinates, y grows downward) and the jump
	// impulse is therefore negative.
	Gravity     float64 `json:"gravity"`
	JumpImpulse float64 `json:"jump_impulse"`

	TimeStep    float64 `json:"time_step"`
	MaxDuration float64 `json:"max_duration"`

	ObstacleWidth  float64 `json:"obstacle_width"`
	ObstacleHeight float64 `json:"obstacle_height"`
	ObstacleSpeed  float64 `json:"obstacle_speed"`

	SpawnIntervalMin float64 `json:"spawn_interval_min"`
	SpawnIntervalMax float64 `json:"spawn_interval_max"`

	// Raw horizontal distance substituted when no obstacle is ahead, so the
	// normalized distance saturates at 1.
	NoObstacleDistance float64 `json:"no_obstacle_distance"`
}

func DefaultConfig() Config {
	return Config{
		FieldWidth:         800,
		FieldHeight:        400,
		AgentX:             50,
		AgentWidth:         30,
		AgentHeight:        30,
		Gravity:            981,
		JumpImpulse:        -500,
		TimeStep:           1.0 / 60.0,
		MaxDuration:        30,
		ObstacleWidth:      25,
		ObstacleHeight:     25,
		ObstacleSpeed:      250,
		SpawnIntervalMin:   0.8,
		SpawnIntervalMax:   2.5,
		NoObstacleDistance: 999,
	}
}

func (c Config) Validate() error {
	if c.FieldWidth <= 0 || c.FieldHeight <= 0 {
		return fmt.Errorf("playfield dimensions must be positive: %gx%g", c.FieldWidth, c.FieldHeight)
	}
	if c.AgentWidth <= 0 || c.AgentHeight <= 0 {
		return fmt.Errorf("agent dimensions must be positive: %gx%g", c.AgentWidth, c.AgentHeight)
	}
	if c.AgentX < 0 || c.AgentX+c.AgentWidth > c.FieldWidth {
		return fmt.Errorf("agent x out of playfield: %g", c.AgentX)
	}
	if c.Gravity <= 0 {
		return fmt.Errorf("gravity must be positive: %g", c.Gravity)
	}
	if c.JumpImpulse >= 0 {
		return fmt.Errorf("jump impulse must be negative: %g", c.JumpImpulse)
	}
	if c.TimeStep <= 0 {
		return fmt.Errorf("time step must be positive: %g", c.TimeStep)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max duration must be positive: %g", c.MaxDuration)
	}
	if c.ObstacleWidth <= 0 || c.ObstacleHeight <= 0 {
		return fmt.Errorf("obstacle dimensions must be positive: %gx%g", c.ObstacleWidth, c.ObstacleHeight)
	}
	if c.ObstacleSpeed <= 0 {
		return fmt.Errorf("obstacle speed must be positive: %g", c.ObstacleSpeed)
	}
	if c.SpawnIntervalMin <= 0 || c.SpawnIntervalMax < c.SpawnIntervalMin {
		return fmt.Errorf("spawn interval bounds invalid: [%g, %g]", c.SpawnIntervalMin, c.SpawnIntervalMax)
	}
	if c.NoObstacleDistance <= 0 {
		return fmt.Errorf("no-obstacle sentinel distance must be positive: %g", c.NoObstacleDistance)
	}
	return nil
}
