package embedding

import "fmt"

// NetworkError reports a provider call that never produced an HTTP response.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("embedding: %s request failed: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamStatusError reports a non-success status from the provider.
type UpstreamStatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("embedding: %s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ParseError reports a provider response that could not be turned into embeddings.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("embedding: %s response: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BatchError names the batch that aborted an Embed call.
type BatchError struct {
	Index  int
	Offset int
	Size   int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding: batch %d (items %d-%d): %v", e.Index, e.Offset, e.Offset+e.Size-1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
