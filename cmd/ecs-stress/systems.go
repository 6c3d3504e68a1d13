package main

import (
	"math/rand/v2"

	"github.com/plus3/tessera/ecs"
)

const (
	preUpdate  ecs.SystemSet = "PreUpdate"
	postUpdate ecs.SystemSet = "PostUpdate"
)

const systemCount = 6

type movementSystem struct {
	Entities ecs.Query[struct {
		*Position
		Velocity *Velocity `ecs:"read"`
	}]
}

func (s *movementSystem) Execute(frame *ecs.UpdateFrame) error {
	dt := float32(frame.DeltaTime)
	for item := range s.Entities.Values() {
		item.Position.X += item.Velocity.DX * dt
		item.Position.Y += item.Velocity.DY * dt
	}
	return nil
}

type decaySystem struct {
	Lifetimes ecs.Query[struct{ *Lifetime }]
	Energy    ecs.Query[struct {
		*Energy
		_ ecs.Without[Burning]
	}]
}

func (s *decaySystem) Execute(frame *ecs.UpdateFrame) error {
	for item := range s.Lifetimes.Values() {
		item.Lifetime.Remaining -= frame.DeltaTime
	}
	for item := range s.Energy.Values() {
		item.Energy.Value -= float32(frame.DeltaTime)
	}
	return nil
}

// burnSystem ignites a few entities each frame and drains the energy of burning ones.
type burnSystem struct {
	Ignitable ecs.Query[struct {
		Energy *Energy `ecs:"read"`
		_      ecs.Without[Burning]
	}]
	Burning ecs.Query[struct {
		*Burning
		*Energy
	}]

	rng *rand.Rand
}

func (s *burnSystem) Execute(frame *ecs.UpdateFrame) error {
	for id, item := range s.Ignitable.Iter() {
		if item.Energy.Value > 60 && s.rng.IntN(100) == 0 {
			frame.Commands.Insert(id, Burning{Ticks: 10})
		}
	}
	for id, item := range s.Burning.Iter() {
		item.Energy.Value -= 2
		item.Burning.Ticks--
		if item.Burning.Ticks <= 0 {
			ecs.RemoveComponent[Burning](frame.Commands, id)
		}
	}
	return nil
}

type reaperSystem struct {
	Entities ecs.Query[struct {
		Lifetime *Lifetime `ecs:"read"`
	}]
	Reaped ecs.EventWriter[Reaped]
}

func (s *reaperSystem) Execute(frame *ecs.UpdateFrame) error {
	for id, item := range s.Entities.Iter() {
		if item.Lifetime.Remaining <= 0 {
			frame.Commands.Despawn(id)
			s.Reaped.Send(Reaped{Entity: id})
		}
	}
	return nil
}

type tallySystem struct {
	Reaped     ecs.EventReader[Reaped]
	Population ecs.ResMut[Population]
}

func (s *tallySystem) Execute(frame *ecs.UpdateFrame) error {
	pop := s.Population.Get()
	for range s.Reaped.Read() {
		pop.Reaped++
	}
	return nil
}

// spawnerSystem tops the population back up to its target.
type spawnerSystem struct {
	Living ecs.Query[struct {
		Lifetime *Lifetime `ecs:"read"`
	}]
	Population ecs.ResMut[Population]

	rng *rand.Rand
}

func (s *spawnerSystem) Execute(frame *ecs.UpdateFrame) error {
	pop := s.Population.Get()
	for missing := pop.Target - s.Living.Count(); missing > 0; missing-- {
		frame.Commands.Spawn(randomComponents(s.rng)...)
		pop.Spawned++
	}
	return nil
}

func registerSystems(scheduler *ecs.Scheduler, seed int64) error {
	scheduler.ConfigureSet(preUpdate, ecs.SetBefore(ecs.DefaultSet))
	scheduler.ConfigureSet(postUpdate, ecs.SetAfter(ecs.DefaultSet))

	registrations := []struct {
		system ecs.System
		opts   []ecs.SystemOption
	}{
		{&spawnerSystem{rng: rand.New(rand.NewPCG(uint64(seed), 1))}, []ecs.SystemOption{ecs.InSet(preUpdate)}},
		{&movementSystem{}, nil},
		{&decaySystem{}, nil},
		{&burnSystem{rng: rand.New(rand.NewPCG(uint64(seed), 2))}, []ecs.SystemOption{ecs.After("decaySystem")}},
		{&reaperSystem{}, []ecs.SystemOption{ecs.InSet(postUpdate)}},
		{&tallySystem{}, []ecs.SystemOption{ecs.InSet(postUpdate), ecs.After("reaperSystem")}},
	}
	for _, r := range registrations {
		if err := scheduler.Register(r.system, r.opts...); err != nil {
			return err
		}
	}
	return nil
}
