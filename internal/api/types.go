package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TaskView describes one transcode task in a transport-friendly format.
type TaskView struct {
	ID           string `json:"id"`
	AssetID      string `json:"assetId"`
	Variant      string `json:"variant"`
	Status       string `json:"status"`
	OutputFile   string `json:"outputFile,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// AssetView pairs an asset with its tasks for listing endpoints.
type AssetView struct {
	ID         string     `json:"id"`
	SourcePath string     `json:"sourcePath"`
	CreatedAt  string     `json:"createdAt,omitempty"`
	Tasks      []TaskView `json:"tasks"`
}

// StatusView summarizes daemon and queue state.
type StatusView struct {
	Running    bool           `json:"running"`
	QueueStats map[string]int `json:"queueStats"`
	Total      int            `json:"total"`
}

// IngestResponse is returned after a successful upload. VideoID duplicates
// the asset identifier at the top level for clients that only want the handle.
type IngestResponse struct {
	VideoID string    `json:"videoId"`
	Asset   AssetView `json:"asset"`
}
