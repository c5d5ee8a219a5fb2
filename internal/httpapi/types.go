package httpapi

import "zionic-engine/internal/pipeline"

type ScrapeStatus struct {
	LastRunAt  string               `json:"last_run_at"`
	LastOkAt   string               `json:"last_ok_at"`
	LastError  string               `json:"last_error"`
	LastResult pipeline.BatchResult `json:"last_result"`
	Running    bool                 `json:"running"`
}
