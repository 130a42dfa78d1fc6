package hostsim

import (
	"extlayer/internal/extension"
	"extlayer/internal/kinds"
)

// Class names a host object type.
type Class string

const (
	ClassHouse    Class = "house"
	ClassUnit     Class = "unit"
	ClassInfantry Class = "infantry"
	ClassBuilding Class = "building"
	ClassWeapon   Class = "weapon"
	// ClassAbstract is a type that exists in the rules but has no backing
	// object type. Spawning one yields an object the extension layer refuses
	// to own.
	ClassAbstract Class = "abstract"
)

type classInfo struct {
	kinds    []extension.Kind
	concrete bool
}

var classes = map[Class]classInfo{
	ClassHouse:    {kinds: []extension.Kind{kinds.House}, concrete: true},
	ClassUnit:     {kinds: []extension.Kind{kinds.Techno}, concrete: true},
	ClassInfantry: {kinds: []extension.Kind{kinds.Techno}, concrete: true},
	ClassBuilding: {kinds: []extension.Kind{kinds.Techno, kinds.Building}, concrete: true},
	ClassWeapon:   {kinds: []extension.Kind{kinds.Weapon}, concrete: true},
	ClassAbstract: {kinds: []extension.Kind{kinds.Techno}},
}

// Classes returns every known class name.
func Classes() []Class {
	return []Class{ClassHouse, ClassUnit, ClassInfantry, ClassBuilding, ClassWeapon, ClassAbstract}
}

// KindsOf returns the extension kinds a class carries.
func KindsOf(class Class) ([]extension.Kind, bool) {
	info, ok := classes[class]
	if !ok {
		return nil, false
	}
	return append([]extension.Kind(nil), info.kinds...), true
}
