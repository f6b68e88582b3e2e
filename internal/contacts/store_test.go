package contacts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/contacts"
	"whatsapp-suite/internal/models"
)

func TestResolver_CRUD(t *testing.T) {
	ctx := context.Background()
	r := contacts.NewResolver(newDB(t), zap.NewNop())

	assert.True(t, apperr.Is(r.Save(ctx, &models.Contact{}), apperr.KindValidation))

	ann := &models.Contact{Name: "Ann", Phone: "+1 415 555 2671"}
	require.NoError(t, r.Save(ctx, ann))
	require.NoError(t, r.Save(ctx, &models.Contact{Name: "Bo", Mobile: "+44 20 7946 0958"}))

	err := r.Save(ctx, &models.Contact{Name: "Dup", Phone: "14155552671"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	ann.Email = "ann@example.com"
	require.NoError(t, r.Save(ctx, ann), "updating keeps its own number")

	found, err := r.List(ctx, "an", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ann@example.com", found[0].Email)

	all, err := r.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, r.Delete(ctx, ann.ID))
	_, err = r.Get(ctx, ann.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(r.Delete(ctx, ann.ID), apperr.KindNotFound))
}
