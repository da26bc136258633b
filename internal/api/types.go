package api

// SoftmaxRequest asks for one probability vector per score row. All rows
// must have the same length.
type SoftmaxRequest struct {
	Sequences [][]float64 `json:"sequences"`
	PadValue  *float64    `json:"pad_value,omitempty"`
	Strict    *bool       `json:"strict,omitempty"`
	TimeoutMS *int        `json:"timeout_ms,omitempty"`
	Fallback  *bool       `json:"fallback,omitempty"`
	Store     *bool       `json:"store,omitempty"`
}

type SoftmaxResponse struct {
	ID            string      `json:"id"`
	Object        string      `json:"object"`
	CreatedAt     int64       `json:"created_at"`
	Backend       string      `json:"backend"`
	Mode          int         `json:"mode"`
	SeqLen        int         `json:"seq_len"`
	Rows          int         `json:"rows"`
	Depths        []int       `json:"depths,omitempty"`
	ElapsedMS     float64     `json:"elapsed_ms"`
	FallbackError string      `json:"fallback_error,omitempty"`
	Probabilities [][]float64 `json:"probabilities"`
}

// AttentionRequest is one attention head: Q and K are [n][d], V is [n][dv].
type AttentionRequest struct {
	Q        [][]float64 `json:"q"`
	K        [][]float64 `json:"k"`
	V        [][]float64 `json:"v"`
	Fallback *bool       `json:"fallback,omitempty"`
}

type AttentionResponse struct {
	ID     string      `json:"id"`
	Object string      `json:"object"`
	Output [][]float64 `json:"output"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Port   string `json:"port"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
