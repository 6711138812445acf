package valuefmt

// Aggregates rendered through the well-known table. Reflect maps them by type name.

type Vector struct{ X, Y, Z float64 }

type Vector2D struct{ X, Y float64 }

type Vector4 struct{ X, Y, Z, W float64 }

type Rotator struct{ Pitch, Yaw, Roll float64 }

type Quat struct{ X, Y, Z, W float64 }

type Transform struct {
	Location Vector
	Rotation Rotator
	Scale    Vector
}

type LinearColor struct{ R, G, B, A float32 }

type Color struct{ R, G, B, A uint8 }

type IntPoint struct{ X, Y int32 }

type IntVector struct{ X, Y, Z int32 }

type IntRect struct{ Min, Max IntPoint }

type BoxSphereBounds struct {
	Origin       Vector
	BoxExtent    Vector
	SphereRadius float64
}

type FloatRange struct{ Lower, Upper float64 }

type IntRange struct{ Lower, Upper int32 }

type GameplayTag struct{ Name string }

type GameplayTagContainer struct{ Tags []GameplayTag }
