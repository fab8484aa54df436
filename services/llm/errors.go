// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "errors"

var (
	// ErrMissingCredentials means a provider was configured without an
	// API key and cannot be constructed.
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrEmbeddingUnavailable means the provider has no embedding model.
	ErrEmbeddingUnavailable = errors.New("embedding not available for provider")

	// ErrStreamInterrupted means a provider failed after emitting one or
	// more fragments. Callers that already forwarded partial output must
	// recover with a blocking completion instead of retrying the stream.
	ErrStreamInterrupted = errors.New("stream interrupted mid-response")

	// ErrEmptyResponse means the provider returned no choices.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)
