package domain

// Cluster is an ephemeral grouping of spatially-near active signals,
// computed on demand for dashboards and disaster-synthesis triggers.
// Clusters are not persisted; the ID only identifies a cluster within a
// single computation.
type Cluster struct {
	ID        string         `json:"id"`
	Center    Location       `json:"center"`
	SignalIDs []string       `json:"signal_ids"`
	Priority  SignalPriority `json:"priority"`
	RadiusKM  float64        `json:"radius_km"`
}

// Size returns the number of member signals.
func (c *Cluster) Size() int {
	return len(c.SignalIDs)
}
