// Package databasetest opens isolated in-memory sqlite databases for tests.
package databasetest

import (
	"context"
	"strings"
	"testing"

	"github.com/tyemirov/rideposter/internal/database"
	"gorm.io/gorm"
)

var nameSanitizer = strings.NewReplacer("/", "_", " ", "_", "#", "_", "?", "_", "&", "_")

// Open returns a GORM handle on a private in-memory sqlite database named after the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	databaseURL := "sqlite:file:" + nameSanitizer.Replace(t.Name()) + "?mode=memory&cache=shared"
	handle, err := database.Open(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })
	return handle.DB
}
