package sim

import "fmt"

// droneTrailLen bounds Drone.Trail.
const droneTrailLen = 10

// DroneState represents the lifecycle state of a drone.
type DroneState string

const (
	DroneTraveling DroneState = "traveling"
	DroneDelivered DroneState = "delivered"
)

// Drone carries one supply type from its origin hospital to a destination hospital.
type Drone struct {
	ID string
	// RequestID links the drone to the DeliveryRequest it was admitted from
	// (empty for manual and auto-deploy drones).
	RequestID     string
	Pos           Position
	OriginID      string
	DestinationID string
	Destination   Position
	Supply        SupplyType
	State         DroneState
	// Path holds the remaining waypoints, excluding Pos.
	Path []Position
	// Trail holds the most recent positions, oldest first.
	Trail []Position
	// Replans counts path recomputations after dispatch.
	Replans int
}

func (d Drone) String() string {
	return fmt.Sprintf("Drone: (ID: %s, Pos: %v, %s -> %s, Supply: %s, Waypoints: %d)",
		d.ID, d.Pos, d.OriginID, d.DestinationID, d.Supply, len(d.Path))
}

// AtDestination reports whether the drone stands on its destination cell.
func (d *Drone) AtDestination() bool {
	return d.Pos == d.Destination
}

// pushTrail records p, dropping the oldest entry past droneTrailLen.
func (d *Drone) pushTrail(p Position) {
	d.Trail = append(d.Trail, p)
	if len(d.Trail) > droneTrailLen {
		d.Trail = d.Trail[len(d.Trail)-droneTrailLen:]
	}
}
