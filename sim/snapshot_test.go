package sim

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_IsDeepCopy(t *testing.T) {
	// GIVEN a running simulation with a drone in flight
	s := newTestSimulator(t, testConfig())
	_, err := s.PlaceHospital(Position{2, 2})
	require.NoError(t, err)
	_, err = s.PlaceHospital(Position{20, 20})
	require.NoError(t, err)
	s.StartSimulation()
	require.NoError(t, s.ManualDeploy())
	s.Step()
	s.Step()
	snap := s.Snapshot()
	require.Len(t, snap.Drones, 1)
	dronePath := append([]Position(nil), snap.Drones[0].Path...)
	h1 := *snap.HospitalByID("H1")

	// WHEN the live state changes
	live := s.Scheduler.Drones()[0]
	live.Path[0] = Position{0, 0}
	s.Registry.Get("H1").Specialties[SupplyMedical] = 99
	s.Grid.SetKind(Position{7, 7}, CellBuilding)

	// THEN the snapshot is unaffected
	assert.Equal(t, dronePath, snap.Drones[0].Path)
	assert.Equal(t, h1.Specialties, snap.HospitalByID("H1").Specialties)
	assert.NotEqual(t, 99, snap.HospitalByID("H1").Specialties[SupplyMedical])
	assert.Equal(t, CellEmpty, snap.Cells[7*snap.GridSize+7])
	assert.Nil(t, snap.HospitalByID("H3"))
}

func TestSnapshot_JSONShape(t *testing.T) {
	s := newTestSimulator(t, testConfig())
	_, err := s.PlaceHospital(Position{2, 3})
	require.NoError(t, err)
	s.Step()

	b, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, "edit", decoded["mode"])
	assert.EqualValues(t, 25, decoded["grid_size"])
	hospitals, ok := decoded["hospitals"].([]any)
	require.True(t, ok)
	require.Len(t, hospitals, 1)
	h := hospitals[0].(map[string]any)
	assert.Equal(t, "H1", h["id"])
	assert.Equal(t, map[string]any{"x": 2.0, "y": 3.0}, h["pos"])
	assert.Contains(t, decoded, "counters")
}
