package model

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
}

type Segment struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
	Status   string  `json:"status"`
	Attempts int     `json:"attempts,omitempty"`
}

type Failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type RunTimings struct {
	Normalize  int64 `json:"normalize"`
	Transcribe int64 `json:"transcribe"`
	Summarize  int64 `json:"summarize"`
	Total      int64 `json:"total"`
}

type RunResponse struct {
	RunID      string     `json:"run_id"`
	State      string     `json:"state"`
	Transcript string     `json:"transcript"`
	Segments   []Segment  `json:"segments,omitempty"`
	Summary    string     `json:"summary"`
	Failure    *Failure   `json:"failure,omitempty"`
	TimingsMS  RunTimings `json:"timings_ms"`
}

// ProgressEvent is the payload of a "progress" server-sent event.
type ProgressEvent struct {
	RunID   string `json:"run_id"`
	State   string `json:"state"`
	Percent int    `json:"percent"`
	Detail  string `json:"detail,omitempty"`
}

type SummaryRequest struct {
	Transcript string `json:"transcript"`
	MinLength  int    `json:"min_length"`
	MaxLength  int    `json:"max_length"`
}

type SummaryResponse struct {
	Summary   string `json:"summary"`
	Words     int    `json:"words"`
	Chunks    int    `json:"chunks"`
	Fallbacks int    `json:"fallbacks"`
	ExtraPass bool   `json:"extra_pass"`
	Truncated bool   `json:"truncated"`
}

type ExportRequest struct {
	Transcript string `json:"transcript"`
	Summary    string `json:"summary"`
	Format     string `json:"format"`
	FileName   string `json:"file_name,omitempty"`
}
