package contacts_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-suite/internal/contacts"
	"whatsapp-suite/internal/database"
	"whatsapp-suite/internal/models"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	return db
}

func TestResolver_MatchesNormalizedMobile(t *testing.T) {
	db := newDB(t)
	existing := models.Contact{Name: "Ann", Mobile: "+1 (415) 555-2671"}
	require.NoError(t, db.Create(&existing).Error)

	r := contacts.NewResolver(db, zap.NewNop())
	got, err := r.Resolve(context.Background(), "14155552671", "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, "Ann", got.Name)
}

func TestResolver_CreatesFromProfile(t *testing.T) {
	db := newDB(t)
	r := contacts.NewResolver(db, zap.NewNop())
	ctx := context.Background()

	created, err := r.Resolve(ctx, "447700900123", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", created.Name)
	assert.Equal(t, "447700900123", created.Phone)
	assert.Equal(t, "447700900123", created.Mobile)
	require.NotNil(t, created.NormalizedPhone)
	assert.Equal(t, "+447700900123", *created.NormalizedPhone)

	again, err := r.Resolve(ctx, "+44 7700 900123", "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	var count int64
	db.Model(&models.Contact{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestResolver_NameFallsBackToNumber(t *testing.T) {
	r := contacts.NewResolver(newDB(t), zap.NewNop())

	c, err := r.Resolve(context.Background(), "15550001111", " ")
	require.NoError(t, err)
	assert.Equal(t, "15550001111", c.Name)
}

func TestResolver_LosingCreateRaceReturnsWinner(t *testing.T) {
	db := newDB(t)
	r := contacts.NewResolver(db, zap.NewNop())

	// Another request inserted the number between our lookup and insert;
	// the on-conflict insert must yield that row rather than a duplicate.
	winner := models.Contact{Name: "Winner", Phone: "15550002222"}
	require.NoError(t, db.Create(&winner).Error)

	dup := models.Contact{Name: "Loser", Phone: "+1 555 000 2222"}
	err := db.Create(&dup).Error
	assert.Error(t, err, "unique index on normalized phone")

	got, err := r.Resolve(context.Background(), "15550002222", "Loser")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
}

func TestResolver_EmptyNumber(t *testing.T) {
	r := contacts.NewResolver(newDB(t), zap.NewNop())

	c, err := r.Resolve(context.Background(), "", "x")
	require.NoError(t, err)
	assert.Nil(t, c)
}
