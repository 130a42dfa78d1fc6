package hostsim

import (
	"hash/fnv"
	"math/rand"
	"strconv"

	"extlayer/internal/extension"
	"extlayer/internal/handle"
	"extlayer/internal/kinds"
)

// frameSeed derives the RNG seed for one frame from the world seed.
func frameSeed(rootSeed string, frame uint64) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strconv.FormatUint(frame, 10)))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// Step advances the simulation by one frame. Every record mutation is drawn
// from an RNG seeded by the world seed and the frame, so two worlds holding
// the same objects in the same order stay in lockstep.
func (w *World) Step() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame++
	w.ext.SetFrame(w.frame)
	rng := rand.New(rand.NewSource(frameSeed(w.config.Seed, w.frame)))

	var combatants []handle.ID
	for _, obj := range w.objects {
		if _, ok := extension.TryFetch[*kinds.TechnoExt](w.ext, obj.ID, kinds.Techno); ok {
			combatants = append(combatants, obj.ID)
		}
	}
	pick := func() handle.ID {
		if len(combatants) == 0 {
			return handle.ID{}
		}
		return combatants[rng.Intn(len(combatants))]
	}

	for _, obj := range w.objects {
		switch obj.Class {
		case ClassHouse:
			extension.With(w.ext, obj.ID, kinds.House, func(h *kinds.HouseExt) {
				if rng.Intn(3) == 0 {
					h.ProducedUnits++
				}
				h.PowerSurplus = int32(rng.Intn(200) - 100)
				if rng.Intn(8) == 0 {
					h.LastAttackedBy = pick()
				}
			})
		case ClassUnit, ClassInfantry, ClassBuilding:
			extension.With(w.ext, obj.ID, kinds.Techno, func(t *kinds.TechnoExt) {
				if rng.Intn(4) == 0 {
					t.ElectricBoltCount++
				}
				if t.SpawnDelay > 0 {
					t.SpawnDelay--
				}
				if rng.Intn(5) == 0 {
					if target := pick(); target != obj.ID {
						t.MissionTarget = target
					}
				}
			})
			if obj.Class != ClassBuilding {
				continue
			}
			extension.With(w.ext, obj.ID, kinds.Building, func(b *kinds.BuildingExt) {
				b.IsPowered = rng.Intn(10) != 0
				if rng.Intn(6) != 0 {
					return
				}
				if b.LightVisible {
					b.ClearLight()
					return
				}
				color := kinds.RGB{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256))}
				if err := b.SetLight(int32(rng.Intn(1000)+1), color); err != nil {
					w.logger.Printf("frame %d: %s light: %v", w.frame, obj.ID, err)
				}
			})
		}
	}
	return w.frame
}
