package cli

import (
	"testing"
)

func TestAppContextClose_Empty(t *testing.T) {
	a := &AppContext{}
	if err := a.Close(); err != nil {
		t.Errorf("Close() on an empty context should not error, got: %v", err)
	}
}
