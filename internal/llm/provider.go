// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:generate go run go.uber.org/mock/mockgen -source=provider.go -destination=../mocks/mock_provider.go -package=mocks

package llm

import "context"

// =============================================================================
// PROVIDER
// =============================================================================

// Provider streams one assistant turn. Stream calls emit for every event in
// order and returns when the stream completes, the context is canceled, or
// emit returns an error. A non-nil return means the turn did not complete.
type Provider interface {
	Stream(ctx context.Context, req Request, emit func(Event) error) error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request, emit func(Event) error) error

// Stream calls f.
func (f ProviderFunc) Stream(ctx context.Context, req Request, emit func(Event) error) error {
	return f(ctx, req, emit)
}
