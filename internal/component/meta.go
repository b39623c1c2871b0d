package component

// Named and Described are display metadata.
type Named struct {
	Name string
}

type Described struct {
	Text string
}

// RenderMesh names the asset a renderer draws for the entity.
type RenderMesh struct {
	Mesh string
}

// Price is the base reference price of a commodity or the build cost of a
// blueprint.
type Price struct {
	Value float64
}

// Pickable marks entities the UI may select.
type Pickable struct{}

// Owned records which family placed the entity.
type Owned struct {
	FamilyIx int
}

// Commodity tags the catalogue entities that goods are keyed by.
type Commodity struct{}

// Blueprint tags prototype entities. Prototypes are never placed on the grid;
// their components are copied into new instances.
type Blueprint struct {
	Dwelling bool // the blueprint used for population growth
}
