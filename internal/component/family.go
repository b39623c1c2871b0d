package component

// Family is a player or AI faction. Families live outside the entity store
// and are referenced by index from Trader.FamilyID and Owned.FamilyIx.
type Family struct {
	Name    string
	Balance float64
}
