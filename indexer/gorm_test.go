package indexer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestGormStore(t *testing.T) {
	dsn := os.Getenv("SHAREPOOL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SHAREPOOL_TEST_POSTGRES_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(
		&poolRecord{}, &donationRecord{}, &donorRecord{}, &eventRecord{}, &cursorRecord{},
	))

	store, err := NewGormStore(db)
	require.NoError(t, err)
	defer store.Close()

	runStoreSuite(t, store)
}
