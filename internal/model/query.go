package model

import (
	"net/url"
	"time"
)

// QueryRequest represents a natural language query request
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
	Seed  *int64 `json:"seed,omitempty"` // fixes the mock bundle for reproducible demos
}

// QueryResponse carries every stage of the pipeline for one query
type QueryResponse struct {
	OriginalQuery   string         `json:"original_query"`
	ExtractedIntent *QueryIntent   `json:"extracted_intent"`
	FHIRQuery       *CompiledQuery `json:"fhir_query"`
	FHIRResponse    *Bundle        `json:"fhir_response"`
	Seed            int64          `json:"seed"`
	Took            int64          `json:"took_ms"`
}

// CompiledQuery is a FHIR search derived from an intent. A parameter that
// appears more than once must hold for every value (FHIR AND semantics).
type CompiledQuery struct {
	ResourceType string     `json:"resource_type"`
	Params       url.Values `json:"params"`
	URL          string     `json:"url"`
}

// QueryLog is one processed query as persisted in query_logs
type QueryLog struct {
	ID             string    `json:"id" db:"id"`
	Query          string    `json:"query" db:"query"`
	Intent         JSONMap   `json:"intent" db:"intent"`
	FHIRQuery      JSONMap   `json:"fhir_query" db:"fhir_query"`
	Modifiers      JSONArray `json:"modifiers,omitempty" db:"modifiers"`
	ResultCount    int       `json:"result_count" db:"result_count"`
	ResponseTimeMs int       `json:"response_time_ms" db:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// QueryHistoryResponse lists recent query logs
type QueryHistoryResponse struct {
	Queries []QueryLog `json:"queries"`
	Count   int        `json:"count"`
}

// ExamplesResponse lists example queries for clients
type ExamplesResponse struct {
	Examples []string `json:"examples"`
}
