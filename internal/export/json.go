// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"

	"github.com/omnichat/omnichat-tui/internal/storage"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports the complete session structure. Options are not
// applied; the output is a faithful snapshot that can be re-imported.
type JSONExporter struct{}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Export renders the session to indented JSON.
func (e *JSONExporter) Export(sess *storage.SavedSession) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}
	return json.MarshalIndent(sess, "", "  ")
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
