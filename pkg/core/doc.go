// Package core defines the shared language of the schemagraph system.
//
// This package contains:
//   - Schema entities (RawTable, Property, RawRelation)
//   - Graph entities (GraphNode, GraphEdge, Graph, Position)
//   - Visibility and session vocabulary (VisibilityState, IDSet, PlanTier, SessionContext)
//   - The persisted cloud record (CloudSyncRecord)
//   - The error taxonomy shared by the schema adapter and the cloud sync client
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
