package model

// CheckpointMeta records the originating run parameters alongside a
// checkpoint. Informational only; resume decisions look at leads, not meta.
type CheckpointMeta struct {
	Queries  []string `json:"queries,omitempty"`
	Location string   `json:"location,omitempty"`
}

// Checkpoint is the durable intermediate state written at a stage boundary.
type Checkpoint struct {
	Leads []Lead          `json:"leads"`
	Meta  *CheckpointMeta `json:"meta,omitempty"`
}
