package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestionForUnknownKindPointsAtIssueTracker(t *testing.T) {
	hint := KindUnknown.Suggestion()
	assert.Contains(t, hint, "github.com/pantryhq/pantry/issues")
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 2, KindVersionConflict.ExitCode())
	assert.Equal(t, 3, KindIntegrityMismatch.ExitCode())
	assert.Equal(t, 0, KindUnknown.ExitCode())
	assert.Equal(t, 1, KindManifestParse.ExitCode())
}
