package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"extlayer/internal/hostsim"
	"extlayer/internal/savestore"
)

var ErrChecksumMismatch = errors.New("app: checksum changed across save and load")

// Population is the number of objects spawned per class by a scenario.
type Population map[hostsim.Class]int

// DefaultPopulation is a small skirmish: two players, a handful of units and
// structures, and the weapons they use.
func DefaultPopulation() Population {
	return Population{
		hostsim.ClassHouse:    2,
		hostsim.ClassUnit:     6,
		hostsim.ClassInfantry: 8,
		hostsim.ClassBuilding: 4,
		hostsim.ClassWeapon:   3,
	}
}

// ScenarioOptions configure RunScenario.
type ScenarioOptions struct {
	Population Population
	Frames     int
	Slot       string
}

// ScenarioReport summarises one scenario run.
type ScenarioReport struct {
	Slot          string `json:"slot"`
	Objects       int    `json:"objects"`
	Frames        uint64 `json:"frames"`
	Bytes         int    `json:"bytes"`
	SavedChecksum uint64 `json:"savedChecksum"`
	LoadChecksum  uint64 `json:"loadChecksum"`
	Lights        int    `json:"lights"`
}

// RunScenario exercises a full session: populate the world, simulate, save
// into a slot, reset, load the slot back and check the sync value survived.
func RunScenario(ctx context.Context, rt *Runtime, opts ScenarioOptions) (ScenarioReport, error) {
	population := opts.Population
	if len(population) == 0 {
		population = DefaultPopulation()
	}
	slot := opts.Slot
	if slot == "" {
		slot = "scenario"
	}
	world := rt.World

	world.Reset(ctx)
	if err := Populate(ctx, rt, population); err != nil {
		return ScenarioReport{}, err
	}
	for i := 0; i < opts.Frames; i++ {
		world.Step()
	}

	saved, err := world.Checksum(ctx)
	if err != nil {
		return ScenarioReport{}, err
	}
	var buf bytes.Buffer
	if err := world.Save(ctx, &buf); err != nil {
		return ScenarioReport{}, err
	}
	report := ScenarioReport{
		Slot:          slot,
		Objects:       world.Len(),
		Frames:        world.Frame(),
		Bytes:         buf.Len(),
		SavedChecksum: saved,
	}
	if err := rt.Saves.Put(ctx, savestore.Slot{
		Name:     slot,
		Session:  world.Session().String(),
		Frame:    report.Frames,
		Checksum: saved,
		Objects:  report.Objects,
		Payload:  buf.Bytes(),
	}); err != nil {
		return report, err
	}

	world.Reset(ctx)
	if err := LoadSlot(ctx, rt, slot); err != nil {
		return report, err
	}
	loaded, err := world.Checksum(ctx)
	if err != nil {
		return report, err
	}
	report.LoadChecksum = loaded
	report.Lights = world.Lights()
	if loaded != saved {
		return report, fmt.Errorf("%w: saved %016x, loaded %016x", ErrChecksumMismatch, saved, loaded)
	}
	rt.Logger.Printf("scenario %q: %d objects, %d frames, checksum %016x", slot, report.Objects, report.Frames, saved)
	return report, nil
}

// Populate spawns population into the world in class order.
func Populate(ctx context.Context, rt *Runtime, population Population) error {
	for _, class := range hostsim.Classes() {
		for i := 0; i < population[class]; i++ {
			if _, err := rt.World.Spawn(class); err != nil {
				return fmt.Errorf("spawn %s: %w", class, err)
			}
		}
	}
	return nil
}

// LoadSlot replaces the world with the contents of a stored slot.
func LoadSlot(ctx context.Context, rt *Runtime, name string) error {
	slot, err := rt.Saves.Get(ctx, name)
	if err != nil {
		return err
	}
	return rt.World.Load(ctx, bytes.NewReader(slot.Payload))
}
