package database

// EdgeRow is one directed edge in the review graph. The composite unique
// index makes re-running a review on the same commit idempotent.
type EdgeRow struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SourceID   string `gorm:"not null;index:idx_edges_source;uniqueIndex:uq_edge"`
	EdgeType   string `gorm:"not null;index:idx_edges_type;uniqueIndex:uq_edge"`
	TargetID   string `gorm:"not null;index:idx_edges_target;uniqueIndex:uq_edge"`
	TargetType string `gorm:"not null"`
	Metadata   string `gorm:"not null;default:'{}'"`
}

// TableName overrides the GORM default
func (EdgeRow) TableName() string {
	return "edges"
}

// NodeMeta holds the non-vector half of a graph node: label, JSON
// properties, and the review and session it first appeared in.
type NodeMeta struct {
	NodeID     string `gorm:"primaryKey"`
	NodeType   string `gorm:"not null;index:idx_node_meta_type"`
	Label      string `gorm:"not null"`
	Properties string `gorm:"not null;default:'{}'"`
	ReviewID   string
	SessionID  string `gorm:"index:idx_node_meta_session"`
	CreatedAt  string `gorm:"not null"`
}

// TableName overrides the GORM default
func (NodeMeta) TableName() string {
	return "node_meta"
}

// AllModels returns every model for auto-migration
func AllModels() []any {
	return []any{
		&EdgeRow{},
		&NodeMeta{},
	}
}
