// Package msg holds the built-in message types exchanged over the bus.
// External layers publish opaque byte payloads; these types exist for
// robot-control code, tests and the stress tool.
package msg

// RobotState is the canonical pose/velocity sample published by robot
// drivers. Field order is part of the CDR wire layout.
type RobotState struct {
	Position  [3]float64 `json:"position"`
	Velocity  [3]float64 `json:"velocity"`
	Timestamp int64      `json:"timestamp"`
}

// Imu carries a raw inertial sample.
type Imu struct {
	Orientation     [4]float64 `json:"orientation"` // quaternion xyzw
	AngularVelocity [3]float64 `json:"angular_velocity"`
	LinearAccel     [3]float64 `json:"linear_accel"`
	Timestamp       int64      `json:"timestamp"`
}

// Twist is a velocity command: linear and angular components.
type Twist struct {
	Linear  [3]float64 `json:"linear"`
	Angular [3]float64 `json:"angular"`
}

// Log is a free-form diagnostic record.
type Log struct {
	Level   uint8  `json:"level"`
	Node    string `json:"node"`
	Message string `json:"message"`
}
