package model

// Grouped holds values keyed by entity ID and remembers the order in which
// entity IDs were first seen
type Grouped[T any] struct {
	order  []string
	values map[string]T
}

// NewGrouped creates an empty grouping
func NewGrouped[T any]() *Grouped[T] {
	return &Grouped[T]{values: make(map[string]T)}
}

// Upsert replaces the value stored for entityID with fn(current, exists)
func (g *Grouped[T]) Upsert(entityID string, fn func(current T, exists bool) T) {
	current, exists := g.values[entityID]
	if !exists {
		g.order = append(g.order, entityID)
	}
	g.values[entityID] = fn(current, exists)
}

// Get returns the value stored for entityID
func (g *Grouped[T]) Get(entityID string) (T, bool) {
	v, ok := g.values[entityID]
	return v, ok
}

// EntityIDs returns the entity IDs in first-appearance order
func (g *Grouped[T]) EntityIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of entities
func (g *Grouped[T]) Len() int {
	return len(g.order)
}

// StatementIDs groups statement IDs by entity, in input order
type StatementIDs = Grouped[[]string]

// RankCommands groups per-statement rank commands by entity
type RankCommands = Grouped[map[string]RankCommand]

// RankCommand is the target state of one statement in individual mode
type RankCommand struct {
	Rank   Rank   `json:"rank"`
	Reason string `json:"reason"` // Item ID or ""
}

// AddStatementID appends statementID to the group of its entity
func AddStatementID(g *StatementIDs, entityID, statementID string) {
	g.Upsert(entityID, func(ids []string, _ bool) []string {
		return append(ids, statementID)
	})
}

// AddRankCommand records cmd for statementID in the group of its entity
func AddRankCommand(g *RankCommands, entityID, statementID string, cmd RankCommand) {
	g.Upsert(entityID, func(cmds map[string]RankCommand, exists bool) map[string]RankCommand {
		if !exists {
			cmds = make(map[string]RankCommand)
		}
		cmds[statementID] = cmd
		return cmds
	})
}
