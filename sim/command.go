package sim

import "fmt"

// CommandKind names a simulation command.
type CommandKind string

const (
	CmdPlaceHospital  CommandKind = "place_hospital"
	CmdPlaceBuilding  CommandKind = "place_building"
	CmdStart          CommandKind = "start"
	CmdStop           CommandKind = "stop"
	CmdClear          CommandKind = "clear"
	CmdSetAutoDeploy  CommandKind = "set_auto_deploy"
	CmdSetDeployCount CommandKind = "set_deploy_count"
	CmdManualDeploy   CommandKind = "manual_deploy"
)

// Command is a queued request to change simulation state, submitted from
// outside the orchestrator goroutine and applied at the start of the next tick.
type Command struct {
	Kind    CommandKind `json:"command"`
	Pos     Position    `json:"pos"`
	Enabled bool        `json:"enabled"`
	Count   int         `json:"count"`
}

func (c Command) String() string {
	switch c.Kind {
	case CmdPlaceHospital, CmdPlaceBuilding:
		return fmt.Sprintf("%s %v", c.Kind, c.Pos)
	case CmdSetAutoDeploy:
		return fmt.Sprintf("%s %t", c.Kind, c.Enabled)
	case CmdSetDeployCount:
		return fmt.Sprintf("%s %d", c.Kind, c.Count)
	default:
		return string(c.Kind)
	}
}

// Apply executes cmd immediately. Orchestrator goroutine only; other
// goroutines use Submit.
func (s *Simulator) Apply(cmd Command) error {
	switch cmd.Kind {
	case CmdPlaceHospital:
		_, err := s.PlaceHospital(cmd.Pos)
		return err
	case CmdPlaceBuilding:
		return s.PlaceBuilding(cmd.Pos)
	case CmdStart:
		s.StartSimulation()
		return nil
	case CmdStop:
		s.StopSimulation()
		return nil
	case CmdClear:
		s.ClearSimulation()
		return nil
	case CmdSetAutoDeploy:
		s.SetAutoDeploy(cmd.Enabled)
		return nil
	case CmdSetDeployCount:
		s.SetDeployCount(cmd.Count)
		return nil
	case CmdManualDeploy:
		return s.ManualDeploy()
	default:
		return fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Kind)
	}
}

// Submit queues cmd for the orchestrator. Safe from any goroutine.
func (s *Simulator) Submit(cmd Command) {
	s.commands.Push(cmd)
}
